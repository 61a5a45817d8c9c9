package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/zhouzirui/lifeline/backend/internal/model/chat"
	"github.com/zhouzirui/lifeline/backend/internal/service/conversation"
)

const welcome = `Life Insurance Support Assistant

I can help you with:
  - Understanding different types of life insurance policies
  - Checking eligibility requirements
  - Calculating premium estimates
  - Learning about the claims process
  - Comparing coverage options

Type /help for commands or ask any question about life insurance.
Type /quit to exit.
`

const helpText = `Available commands:
  /help           Show this help message
  /clear          Clear conversation history
  /history        Show conversation history
  /new            Start a new session
  /quit or /exit  Exit the application
`

// REPL is an interactive loop over one conversation session at a time.
type REPL struct {
	conv      *conversation.Service
	in        *bufio.Scanner
	out       io.Writer
	sessionID string
}

func NewREPL(conv *conversation.Service, in io.Reader, out io.Writer) *REPL {
	return &REPL{conv: conv, in: bufio.NewScanner(in), out: out}
}

// Run prints the welcome banner and answers lines until /quit or end of input.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprint(r.out, welcome)
	if err := r.newSession(ctx); err != nil {
		return err
	}

	for {
		fmt.Fprint(r.out, "\nYou: ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(r.in.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/"):
			if !r.command(ctx, line) {
				return nil
			}
		default:
			r.ask(ctx, line)
		}
	}
}

// Once answers a single question in a fresh session.
func (r *REPL) Once(ctx context.Context, question string) error {
	if err := r.newSession(ctx); err != nil {
		return err
	}
	r.ask(ctx, question)
	return nil
}

// command handles a slash command and reports whether the loop continues.
func (r *REPL) command(ctx context.Context, line string) bool {
	switch strings.ToLower(line) {
	case "/quit", "/exit":
		fmt.Fprintln(r.out, "Thank you for using the Life Insurance Support Assistant! Goodbye!")
		return false
	case "/help":
		fmt.Fprint(r.out, helpText)
	case "/clear":
		r.clear(ctx)
	case "/history":
		r.history(ctx)
	case "/new":
		r.clear(ctx)
		fmt.Fprintln(r.out, "New session started")
	default:
		fmt.Fprintln(r.out, "Unknown command. Type /help for available commands.")
	}
	return true
}

func (r *REPL) newSession(ctx context.Context) error {
	s, err := r.conv.Store().CreateSession(ctx, "")
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	r.sessionID = s.ID
	fmt.Fprintf(r.out, "Session created: %s\n", s.ID)
	return nil
}

func (r *REPL) clear(ctx context.Context) {
	if r.sessionID == "" {
		fmt.Fprintln(r.out, "No active session to clear")
		return
	}
	if err := r.conv.Store().DeleteSession(ctx, r.sessionID); err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
	}
	fmt.Fprintln(r.out, "Conversation history cleared")
	if err := r.newSession(ctx); err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
	}
}

func (r *REPL) history(ctx context.Context) {
	if r.sessionID == "" {
		fmt.Fprintln(r.out, "No active session")
		return
	}
	messages, err := r.conv.Store().RecentMessages(ctx, r.sessionID, 0)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	if len(messages) == 0 {
		fmt.Fprintln(r.out, "No conversation history yet")
		return
	}

	fmt.Fprintln(r.out, "Conversation History")
	for _, msg := range messages {
		who := "Assistant"
		if msg.Role == chat.RoleUser {
			who = "You"
		}
		fmt.Fprintf(r.out, "\n[%s]\n%s\n", who, msg.Content)
	}
}

func (r *REPL) ask(ctx context.Context, question string) {
	reply, err := r.conv.Ask(ctx, r.sessionID, question)
	if err != nil && !errors.Is(err, conversation.ErrTurnFailed) {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}

	answer := reply.Message
	if err != nil {
		answer = reply.Result.Answer
	}
	fmt.Fprintf(r.out, "\nAssistant:\n%s\n", answer)

	if len(reply.Sources) > 0 {
		names := make([]string, 0, len(reply.Sources))
		for _, s := range reply.Sources {
			names = append(names, filepath.Base(s))
		}
		fmt.Fprintf(r.out, "Sources: %s\n", strings.Join(names, ", "))
	}
	if reply.Reasoning != "" {
		fmt.Fprintf(r.out, "[%s]\n", reply.Reasoning)
	}
}
