package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/agrimart/bridge/lib/block/types"
	"github.com/agrimart/bridge/lib/util"
)

// Errors returned to client requests.
var (
	ErrBadRequest         = errors.New("bad request")
	ErrMissingField       = errors.New("missing required field")
	ErrNoNet              = errors.New("network not available")
	ErrExistsLocal        = errors.New("user already exists in the local database")
	ErrExistsLedger       = errors.New("user already exists on the ledger")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInsufficientFunds  = errors.New("insufficient balance for transfer including fees")
)

// Response defines the data structure returned to the client making the http request.
type Response struct {
	Body  string `json:"body"`
	Error string `json:"error,omitempty"`
}

// registerReq is the typed request body for POST /register.
type registerReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Net      string `json:"net,omitempty"`
}

// loginReq is the typed request body for POST /login.
type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// depositReq is the typed request body for POST /deposit.
type depositReq struct {
	Amount string `json:"amount"`
	Net    string `json:"net,omitempty"`
}

// transferReq is the typed request body for POST /transfer.
type transferReq struct {
	Username  string `json:"username"`
	ToAddress string `json:"to_address"`
	Amount    string `json:"amount"`
	Password  string `json:"password"`
	Net       string `json:"net,omitempty"`
}

// statusFor maps coordinator errors onto HTTP status codes per the error taxonomy.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrNoToken), errors.Is(err, ErrBadToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrExistsLocal), errors.Is(err, ErrExistsLedger),
		errors.Is(err, ErrInsufficientFunds), errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrMissingField), errors.Is(err, util.ErrBadAmount),
		errors.Is(err, util.ErrPrecision):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoNet):
		return http.StatusNotFound
	}

	if kind, ok := types.ErrKind(err); ok && kind == types.Timeout {
		return http.StatusGatewayTimeout
	}

	return http.StatusInternalServerError
}

// reply writes the Response envelope with the appropriate status and logs the request.
func reply(rw http.ResponseWriter, r *http.Request, res *Response, err error, okStatus int) {
	rw.Header().Set("Content-Type", "application/json;charset=utf8")

	if err != nil {
		res.Error = fmt.Sprintf("%s", err)

		rw.WriteHeader(statusFor(err))
	} else {
		rw.WriteHeader(okStatus)
	}
	// log request and outcome
	log.Printf("httpreq from %v %s err:%e\n", r.RemoteAddr, r.RequestURI, err)

	_ = json.NewEncoder(rw).Encode(res)
}

// homeHandler just replies a welcome message to the client.
func (m *Market) homeHandler(rw http.ResponseWriter, r *http.Request) {
	var res Response
	// log request
	log.Printf("httpreq from %v %s\n", r.RemoteAddr, r.RequestURI)
	// just reply a welcome message
	res.Body = "Hello, this is the agrimart ledger bridge!"
	// reply
	rw.Header().Set("Content-Type", "application/json;charset=utf8")
	_ = json.NewEncoder(rw).Encode(res)
}

// networksHandler replies the ledgers available to the service.
func (m *Market) networksHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	pl := make([]string, 0, len(m.bc))

	defer func() { reply(rw, r, &res, err, http.StatusOK) }()

	for net := range m.bc {
		pl = append(pl, net)
	}

	tmp, _ := json.Marshal(pl)
	res.Body = string(tmp)
}

// registerHandler registers a new identity on the ledger and in the credential store.
func (m *Market) registerHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var req registerReq

	defer func() { reply(rw, r, &res, err, http.StatusCreated) }()

	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		err = ErrBadRequest

		return
	}

	if req.Username == "" || req.Password == "" {
		err = ErrMissingField

		return
	}

	if err = m.Register(r.Context(), req.Net, req.Username, req.Password); err != nil {
		return
	}

	res.Body = "user registered successfully on ledger and database"
}

// loginHandler verifies credentials and issues a bearer token.
func (m *Market) loginHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var req loginReq

	defer func() { reply(rw, r, &res, err, http.StatusOK) }()

	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		err = ErrBadRequest

		return
	}

	if req.Username == "" || req.Password == "" {
		err = ErrMissingField

		return
	}

	var token string
	if token, err = m.Login(r.Context(), req.Username, req.Password); err != nil {
		return
	}

	res.Body = token
}

// depositHandler deposits funds into the authenticated caller's ledger account.
func (m *Market) depositHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var req depositReq

	defer func() { reply(rw, r, &res, err, http.StatusOK) }()

	claims, err := m.callerClaims(r)
	if err != nil {
		return
	}

	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		err = ErrBadRequest

		return
	}

	if req.Amount == "" {
		err = ErrMissingField

		return
	}

	var receipt types.Receipt
	if receipt, err = m.Deposit(r.Context(), req.Net, claims, req.Amount); err != nil {
		return
	}

	tmp, _ := json.Marshal(receipt)
	res.Body = string(tmp)
}

// transferHandler validates the caller's credentials and affordability, then submits a
// transfer to the ledger and waits for finality.
func (m *Market) transferHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	var req transferReq

	defer func() { reply(rw, r, &res, err, http.StatusOK) }()

	if err = json.NewDecoder(r.Body).Decode(&req); err != nil {
		err = ErrBadRequest

		return
	}

	if req.Username == "" || req.Password == "" || req.ToAddress == "" || req.Amount == "" {
		err = ErrMissingField

		return
	}

	var receipt types.Receipt
	if receipt, err = m.Transfer(r.Context(), req.Net, req.Username, req.ToAddress, req.Amount, req.Password); err != nil {
		return
	}

	tmp, _ := json.Marshal(receipt)
	res.Body = string(tmp)
}

// balanceHandler replies the authenticated caller's ledger balance in caller-facing
// units.
func (m *Market) balanceHandler(rw http.ResponseWriter, r *http.Request) {
	var err error

	var res Response

	defer func() { reply(rw, r, &res, err, http.StatusOK) }()

	claims, err := m.callerClaims(r)
	if err != nil {
		return
	}

	var bal string
	if bal, err = m.BalanceOf(r.URL.Query().Get("net"), claims); err != nil {
		return
	}

	res.Body = bal
}
