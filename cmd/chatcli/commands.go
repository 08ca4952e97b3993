package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"campustrade/internal/app/inbox"
	"campustrade/internal/app/session"
	"campustrade/internal/domain/chat"
	"campustrade/internal/infra/platform"
)

type loginCmd struct{ flags *flags }

func newLoginCmd(f *flags) *loginCmd { return &loginCmd{flags: f} }

func (cmd *loginCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "login",
		Usage:     "Sign in and print a bearer token",
		UsageText: "chatcli --user <id> login",
		Action:    cmd.run,
	})
	return app
}

func (cmd *loginCmd) run(ctx context.Context, c *cli.Command) error {
	if err := cmd.flags.signIn(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.Root().Writer, cmd.flags.client.Token())
	return nil
}

type inboxCmd struct {
	flags    *flags
	interval time.Duration
}

func newInboxCmd(f *flags) *inboxCmd { return &inboxCmd{flags: f} }

func (cmd *inboxCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "inbox",
		Usage:       "List your conversations, most recent first",
		UsageText:   "chatcli --user <id> inbox [--watch]",
		Description: "Prints the conversation list. With --watch the list is reprinted whenever it changes.",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "keep polling and reprint on change",
			},
			&cli.DurationFlag{
				Name:        "interval",
				Usage:       "poll interval with --watch",
				Value:       inbox.DefaultInterval,
				Destination: &cmd.interval,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *inboxCmd) run(ctx context.Context, c *cli.Command) error {
	if err := cmd.flags.signIn(ctx); err != nil {
		return err
	}
	out := c.Root().Writer
	self := chat.UserID(cmd.flags.UserID)
	if !c.Bool("watch") {
		convs, err := cmd.flags.client.ListConversations(ctx)
		if err != nil {
			return fmt.Errorf("list conversations: %w", err)
		}
		printInbox(out, self, convs)
		return nil
	}

	poller := &inbox.Poller{
		Lister:   cmd.flags.client,
		Interval: cmd.interval,
		Logger:   cmd.flags.logger,
		OnChange: func(convs []chat.Conversation) { printInbox(out, self, convs) },
	}
	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printInbox(out io.Writer, self chat.UserID, convs []chat.Conversation) {
	if len(convs) == 0 {
		_, _ = fmt.Fprintln(out, "No conversations yet")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLISTING\tWITH\tROLE\tLAST ACTIVITY")
	for _, conv := range convs {
		role := "buyer"
		if conv.SellerID == self {
			role = "seller"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			conv.ID, conv.ListingID, conv.Peer(self), role, conv.LastActivity().Local().Format(time.DateTime))
	}
	_ = w.Flush()
}

type chatCmd struct {
	flags   *flags
	listing string
}

func newChatCmd(f *flags) *chatCmd { return &chatCmd{flags: f} }

func (cmd *chatCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "chat",
		Usage:     "Open a conversation and chat interactively",
		UsageText: "chatcli --user <id> chat <conversation-id> | chatcli --user <id> chat --listing <listing-id>",
		Description: `Lines typed are sent as messages. Commands:
  /typing   announce that you are typing
  /peer     refresh the other participant's last-active time
  /quit     leave the conversation`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "listing",
				Usage:       "open (or start) your conversation about this listing",
				Destination: &cmd.listing,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *chatCmd) run(ctx context.Context, c *cli.Command) error {
	f := cmd.flags
	if err := f.signIn(ctx); err != nil {
		return err
	}

	conversationID := strings.TrimSpace(c.Args().First())
	if cmd.listing != "" {
		conv, err := f.client.OpenListingConversation(ctx, cmd.listing)
		if err != nil {
			return fmt.Errorf("open listing conversation: %w", err)
		}
		conversationID = conv.ID
	}
	if conversationID == "" {
		return errors.New("a conversation id or --listing is required")
	}

	remote, err := platform.Connect(ctx, f.client)
	if err != nil {
		return fmt.Errorf("connect realtime: %w", err)
	}
	defer func() { _ = remote.Close() }()

	sess, err := session.Begin(ctx, session.Deps{
		Platform: remote,
		Activity: f.client,
		Toucher:  f.client,
		Logger:   f.logger,
	}, session.Identity{UserID: chat.UserID(f.UserID), Name: f.Name})
	if err != nil {
		return err
	}
	defer func() {
		endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := sess.End(endCtx); err != nil {
			f.logger.Warn("session end", "error", err)
		}
	}()

	h, err := sess.OpenConversation(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}

	out := c.Root().Writer
	conv := h.Conversation()
	peerName := ""
	if p, err := f.client.Profile(ctx, conv.Peer(chat.UserID(f.UserID))); err == nil {
		peerName = p.DisplayName
	} else {
		f.logger.Debug("peer profile lookup failed", "error", err)
	}
	v := newView(chat.UserID(f.UserID), conv)
	_, _ = fmt.Fprintln(out, header(conv, chat.UserID(f.UserID), peerName))
	v.print(out, v.update(h, time.Now()))

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for range h.Changes() {
			v.print(out, v.update(h, time.Now()))
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.Root().Reader)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			quit, err := cmd.handleLine(ctx, h, line)
			if err != nil {
				_, _ = fmt.Fprintln(out, "! "+err.Error())
			}
			if quit {
				break loop
			}
		}
	}

	if err := sess.CloseConversation(context.WithoutCancel(ctx), h); err != nil {
		f.logger.Warn("close conversation", "error", err)
	}
	<-rendered
	return nil
}

// conversation is the part of a chatsync handle the input loop drives.
type conversation interface {
	Send(ctx context.Context, body string) (chat.Message, error)
	SetTyping(ctx context.Context, typing bool) error
	RefreshPeerActivity(ctx context.Context) error
}

func (cmd *chatCmd) handleLine(ctx context.Context, h conversation, line string) (quit bool, err error) {
	switch strings.TrimSpace(line) {
	case "/quit":
		return true, nil
	case "/typing":
		return false, h.SetTyping(ctx, true)
	case "/peer":
		return false, h.RefreshPeerActivity(ctx)
	case "":
		return false, nil
	}
	if _, err := h.Send(ctx, line); err != nil {
		return false, fmt.Errorf("not sent, retype to retry %q: %w", line, err)
	}
	return false, nil
}
