package market

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

const timeout = 15

// Init sets up and starts the http/https server to service the RESTful API for the
// market service. If sslPort, sslCert and sslKey are informed, it will start an https
// (TLS) server on the specified endpoint. The read/write timeouts only bound the
// connection I/O; the wait for ledger finality is bounded separately per request.
func (m *Market) Init(endpoint, port, sslPort, sslCert, sslKey string) string {
	var err, errTLS error

	// API definition
	r := mux.NewRouter()
	r.HandleFunc("/", m.homeHandler)
	r.HandleFunc("/networks", m.networksHandler).Methods("GET") // get all available ledgers
	r.HandleFunc("/register", m.registerHandler).Methods("POST")
	r.HandleFunc("/login", m.loginHandler).Methods("POST")
	r.HandleFunc("/deposit", m.depositHandler).Methods("POST")
	r.HandleFunc("/transfer", m.transferHandler).Methods("POST")
	r.HandleFunc("/balance", m.balanceHandler).Methods("GET") // get caller's ledger balance
	http.Handle("/", r)

	// setup shutdown channel
	m.sc = make(chan struct{})

	// writes block for the whole finality wait, so the server write timeout must not
	// cut them short
	wTimeout := m.finality + timeout*time.Second

	// start http server
	if port != "" {
		m.s = &http.Server{
			Handler:      r,
			Addr:         endpoint + ":" + port,
			WriteTimeout: wTimeout,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			err = m.s.ListenAndServe()
		}()

		log.Printf("Listening to API http requests on %s:%s", endpoint, port)
	}
	// start https server
	if sslPort != "" && sslCert != "" && sslKey != "" {
		m.ss = &http.Server{
			Handler:      r,
			Addr:         endpoint + ":" + sslPort,
			WriteTimeout: wTimeout,
			ReadTimeout:  timeout * time.Second,
		}

		go func() {
			errTLS = m.ss.ListenAndServeTLS(sslCert, sslKey)
		}()

		log.Printf("Listening to API https requests on %s:%s", endpoint, sslPort)
	}
	// wait for servers to be shutdown
	<-m.sc

	return fmt.Sprintf("shutdown http server:%e, https server:%e", err, errTLS)
}
