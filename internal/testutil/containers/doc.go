// Package containers provides testcontainer management for integration tests.
//
// It starts MySQL (history database backend) and Eclipse Mosquitto (MQTT
// snapshot source) containers with testcontainers-go. Containers are usually
// shared per package from TestMain:
//
//	var mysqlContainer *containers.MySQLContainer
//
//	func TestMain(m *testing.M) {
//	    var err error
//	    mysqlContainer, err = containers.NewMySQLContainer(context.Background(), nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = mysqlContainer.Terminate(context.Background())
//	    os.Exit(code)
//	}
//
// Integration tests using this package use the "integration" build tag:
//
//	//go:build integration
package containers
