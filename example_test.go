package jrpc_test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/marrasen/jrpc"
)

// Request and response types
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CreateUserResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Push event type
type UserUpdatedEvent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// createUser handles user creation
func createUser(ctx context.Context, req CreateUserRequest) (*CreateUserResponse, error) {
	if req.Name == "" {
		return nil, jrpc.ErrInvalidParams("name is required")
	}

	// Notify the requesting client
	if conn := jrpc.Connection(ctx); conn != nil {
		conn.Notify("userUpdated", &UserUpdatedEvent{ID: "123", Name: req.Name})
	}

	return &CreateUserResponse{ID: "123", Name: req.Name}, nil
}

func Example() {
	server := jrpc.NewServer()
	server.OnConnect(func(ctx context.Context, conn *jrpc.Conn) error {
		return conn.Register("createUser", jrpc.PassThrough(), createUser)
	})

	// Start HTTP server with WebSocket endpoint
	http.Handle("/ws", server)
	// http.ListenAndServe(":8080", nil)

	fmt.Println("Server ready")
	// Output: Server ready
}

func ExampleEngine_Process() {
	e := jrpc.New(nil)
	e.Register("add", jrpc.Positional(), func(a, b int) int { return a + b })
	e.Register("subtract", jrpc.Named("minuend", "subtrahend"), func(minuend, subtrahend int) int {
		return minuend - subtrahend
	})

	out, _ := e.Process(context.Background(), []byte(`{"jsonrpc":"2.0","method":"add","params":[2,3],"id":1}`))
	fmt.Println(string(out))

	out, _ = e.Process(context.Background(), []byte(`{"jsonrpc":"2.0","method":"subtract","params":{"subtrahend":23,"minuend":42},"id":2}`))
	fmt.Println(string(out))

	out, _ = e.Process(context.Background(), []byte(`{"jsonrpc":"2.0","method":"ping"}`))
	fmt.Println(out == nil)
	// Output:
	// {"jsonrpc":"2.0","id":1,"result":5}
	// {"jsonrpc":"2.0","id":2,"result":19}
	// true
}

func ExamplePipe() {
	client, server := jrpc.Pipe()
	server.Register("greet", jrpc.Positional(), func(name string) string { return "hello " + name })

	var greeting string
	if err := client.Call(context.Background(), "greet", []string{"gopher"}, &greeting); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(greeting)
	// Output: hello gopher
}
