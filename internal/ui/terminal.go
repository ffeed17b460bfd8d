// Package ui renders the interactive terminal front end. All messaging state
// lives in the session, uploader, and chat log; this package only reads it.
package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"roomchat/internal/chatlog"
	"roomchat/internal/domain"
	"roomchat/internal/session"
	"roomchat/internal/upload"
)

// Terminal is the interactive REPL.
type Terminal struct {
	session  *session.Session
	uploader *upload.Uploader
	log      *chatlog.Log
	logger   *slog.Logger
	in       io.Reader
	out      io.Writer
	outMu    sync.Mutex // serializes prompt redraws with inbound renders
}

type Config struct {
	Session  *session.Session
	Uploader *upload.Uploader
	Log      *chatlog.Log
	Logger   *slog.Logger
	In       io.Reader
	Out      io.Writer
}

func New(cfg Config) *Terminal {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Terminal{
		session:  cfg.Session,
		uploader: cfg.Uploader,
		log:      cfg.Log,
		logger:   cfg.Logger,
		in:       cfg.In,
		out:      cfg.Out,
	}
}

// Run starts the session, optionally joins roomID, and blocks on the REPL
// until the context is cancelled or the user quits.
func (t *Terminal) Run(ctx context.Context, roomID string) error {
	t.log.OnAppend(t.renderIncoming)
	t.session.Start()
	defer t.session.Stop()

	t.println("roomchat. /room <id> to join, /attach <path> to stage a file, /quit to exit.")
	if roomID != "" {
		if !t.session.Join(roomID) {
			return fmt.Errorf("invalid room id %q", roomID)
		}
		t.println("joined room " + roomID)
	}
	t.prompt()

	scanner := bufio.NewScanner(t.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit" || line == "/exit" || line == "/q":
			t.logger.Info("user requested quit")
			return nil
		case strings.HasPrefix(line, "/room "):
			room := strings.TrimSpace(strings.TrimPrefix(line, "/room "))
			if t.session.Join(room) {
				t.println("joined room " + room)
			} else {
				t.println("room id cannot be blank")
			}
		case strings.HasPrefix(line, "/attach "):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/attach "))
			t.attach(ctx, path)
		case line == "/detach":
			t.uploader.Discard()
			t.println("attachment removed")
		default:
			t.send(line)
		}
		t.prompt()
	}
}

// attach stages the file and runs the upload in the background so the REPL
// stays responsive; the send guard holds messages back until it resolves.
func (t *Terminal) attach(ctx context.Context, path string) {
	if path == "" {
		return
	}
	name := filepath.Base(path)
	t.println(fmt.Sprintf("[%s] %s staged", fileKind(name), name))
	go func() {
		if err := t.uploader.Select(ctx, path); err != nil {
			if errors.Is(err, upload.ErrUploadInFlight) {
				t.println("previous upload still running")
				return
			}
			t.println("upload failed: " + err.Error())
			t.prompt()
			return
		}
		if att := t.uploader.Current(); att != nil {
			t.println(fmt.Sprintf("[%s] %s uploaded", fileKind(att.Name), att.Name))
			t.prompt()
		}
	}()
}

func (t *Terminal) send(text string) {
	err := t.session.Send(text)
	switch {
	case errors.Is(err, session.ErrNotJoined):
		t.println("join a room first: /room <id>")
	case errors.Is(err, session.ErrUploadInFlight):
		t.println("attachment still uploading, try again shortly")
	case err != nil:
		t.println("send failed: " + err.Error())
	}
}

// renderIncoming prints one broadcast message as it arrives. Sent messages
// appear here too: the client does not echo locally and relies on the relay
// broadcasting back to the sender.
func (t *Terminal) renderIncoming(msg domain.ReceivedMessage) {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	fmt.Fprintln(t.out)
	if msg.Sender.ID != "" {
		fmt.Fprintf(t.out, "<%s> %s\n", msg.Sender.ID, msg.Message)
	} else {
		fmt.Fprintln(t.out, msg.Message)
	}
	if msg.FileURL != "" {
		fmt.Fprintf(t.out, "    file: %s\n", msg.FileURL)
	}
	t.writePrompt()
}

func (t *Terminal) println(s string) {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	fmt.Fprintln(t.out, s)
}

func (t *Terminal) prompt() {
	t.outMu.Lock()
	defer t.outMu.Unlock()
	t.writePrompt()
}

// writePrompt assumes outMu is held.
func (t *Terminal) writePrompt() {
	if t.uploader.Uploading() {
		fmt.Fprint(t.out, "[uploading] > ")
		return
	}
	if att := t.uploader.Current(); att != nil {
		fmt.Fprintf(t.out, "[%s %s] > ", fileKind(att.Name), att.Name)
		return
	}
	fmt.Fprint(t.out, "> ")
}
