package tool

import (
	"context"
	"fmt"
	"io"
)

// Names of the built-in tools.
const (
	SayToUserName = "__say_to_user__"
	ExitName      = "__exit__"
)

type messageArgs struct {
	Message string `json:"message"`
}

var messageParam = Parameter{Name: "message", Description: "Message text", Type: TypeString}

// SayToUser returns a tool that writes the model's message to w.
func SayToUser(w io.Writer) Tool {
	return NewTypedTool(Descriptor{
		Name:        SayToUserName,
		Description: "Service tool, used by the agent to talk to the user.",
		Required:    []Parameter{messageParam},
	}, func(_ context.Context, a messageArgs) (any, error) {
		if _, err := fmt.Fprintf(w, "Agent says: %s\n", a.Message); err != nil {
			return nil, err
		}
		return "DONE", nil
	})
}

type exitTool struct {
	*TypedTool[messageArgs]
}

func (exitTool) Terminates() bool { return true }

// Exit returns a tool whose successful call terminates the run with the
// supplied message as the result.
func Exit() Tool {
	return exitTool{NewTypedTool(Descriptor{
		Name:        ExitName,
		Description: "Service tool, used by the agent to end the conversation on user request or when the task is complete.",
		Required:    []Parameter{messageParam},
	}, func(_ context.Context, a messageArgs) (any, error) {
		return a.Message, nil
	})}
}
