package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	lerrors "lockboxchain/core/errors"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020

	codeAuthorization = -32031
	codeNotFound      = -32032
	codeInvariant     = -32033
	codeDeadline      = -32034
	codeAlreadyDone   = -32035
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// classify maps a ledger failure onto a JSON-RPC error and HTTP status.
// Failures outside the protocol taxonomy are reported as server errors with
// the detail withheld.
func classify(err error) (int, *RPCError) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return http.StatusBadRequest, rpcErr
	}
	kind := lerrors.KindOf(err)
	switch kind {
	case lerrors.KindAuthorization:
		return http.StatusForbidden, &RPCError{Code: codeAuthorization, Message: err.Error(), Data: kind.String()}
	case lerrors.KindNotFound:
		return http.StatusNotFound, &RPCError{Code: codeNotFound, Message: err.Error(), Data: kind.String()}
	case lerrors.KindInvariant:
		return http.StatusConflict, &RPCError{Code: codeInvariant, Message: err.Error(), Data: kind.String()}
	case lerrors.KindDeadline:
		return http.StatusConflict, &RPCError{Code: codeDeadline, Message: err.Error(), Data: kind.String()}
	case lerrors.KindAlreadyDone:
		return http.StatusConflict, &RPCError{Code: codeAlreadyDone, Message: err.Error(), Data: kind.String()}
	default:
		return http.StatusInternalServerError, &RPCError{Code: codeServerError, Message: "internal error"}
	}
}

func invalidParams(format string, detail interface{}) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: format, Data: detail}
}
