package chain

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientGetBlockCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		if req.Method != "getblockcount" {
			t.Fatalf("unexpected method %q", req.Method)
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":7312044}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{RPCURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	count, err := client.GetBlockCount(context.Background())
	if err != nil {
		t.Fatalf("get block count: %v", err)
	}
	if count != 7312044 {
		t.Fatalf("block count = %d, want 7312044", count)
	}
}

func TestClientSendGas(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RPCRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		if req.Method != "sendtoaddress" {
			t.Fatalf("unexpected method %q", req.Method)
		}
		if len(req.Params) != 3 {
			t.Fatalf("unexpected params: %v", req.Params)
		}
		if req.Params[0] != gasTokenHash {
			t.Fatalf("expected GAS token hash, got %v", req.Params[0])
		}
		if req.Params[1] != "NRecipientXXXXXXXXXXXXXXXXXXXXXXX" {
			t.Fatalf("unexpected recipient %v", req.Params[1])
		}
		// JSON numbers decode as float64.
		if amount, ok := req.Params[2].(float64); !ok || amount != 2500 {
			t.Fatalf("unexpected amount %v", req.Params[2])
		}
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"hash":"0xabc123"}}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{RPCURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	hash, err := client.SendGas(context.Background(), "NRecipientXXXXXXXXXXXXXXXXXXXXXXX", 2500)
	if err != nil {
		t.Fatalf("send gas: %v", err)
	}
	if hash != "0xabc123" {
		t.Fatalf("tx hash = %q, want 0xabc123", hash)
	}
}

func TestClientSurfacesRPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-300,"message":"insufficient funds"}}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{RPCURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.SendGas(context.Background(), "NRecipientXXXXXXXXXXXXXXXXXXXXXXX", 100)
	if err == nil {
		t.Fatal("expected rpc error")
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T: %v", err, err)
	}
	if rpcErr.Code != -300 {
		t.Fatalf("code = %d, want -300", rpcErr.Code)
	}
}

func TestClientValidatesSendArguments(t *testing.T) {
	client, err := NewClient(Config{RPCURL: "http://localhost:10332"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	if _, err := client.SendGas(context.Background(), "", 100); err == nil {
		t.Fatal("expected empty recipient to be rejected")
	}
	if _, err := client.SendGas(context.Background(), "NRecipient", 0); err == nil {
		t.Fatal("expected zero amount to be rejected")
	}
}

func TestTransferChannelSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"hash":"0xdef456"}}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{RPCURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	channel := NewTransferChannel(client, 0, nil)
	if err := channel.Send("NRecipientXXXXXXXXXXXXXXXXXXXXXXX", 42); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestTransferChannelSendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-500,"message":"wallet locked"}}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{RPCURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	channel := NewTransferChannel(client, 0, nil)
	if err := channel.Send("NRecipientXXXXXXXXXXXXXXXXXXXXXXX", 42); err == nil {
		t.Fatal("expected send failure to surface")
	}
}
