package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Chiragadve/chatgenius/internal/config"
	"github.com/Chiragadve/chatgenius/internal/model/chat"
	"github.com/Chiragadve/chatgenius/internal/platform/wsclient"
	"github.com/Chiragadve/chatgenius/internal/service/realtime"
	"github.com/Chiragadve/chatgenius/internal/service/send"
	"github.com/Chiragadve/chatgenius/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		log = log.Level(level)
	}

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("client exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	userID := cfg.Client.UserID
	if userID == "" {
		userID = uuid.NewString()
	}
	name := cfg.Client.UserName
	if name == "" {
		name = userID
	}

	backend := wsclient.New(cfg.Client.RelayURL, log)
	defer backend.Close()

	if err := backend.UpsertProfile(ctx, chat.AuthorProfile{
		ID:        userID,
		Name:      cfg.Client.UserName,
		AvatarURL: cfg.Client.AvatarURL,
	}); err != nil {
		return fmt.Errorf("register profile: %w", err)
	}
	if err := backend.Join(ctx, cfg.Client.Channel, userID); err != nil {
		return fmt.Errorf("join channel %s: %w", cfg.Client.Channel, err)
	}

	client := session.NewClient(backend, send.Identity{
		UserID:  userID,
		Display: chat.AuthorDisplay{Name: name, AvatarURL: cfg.Client.AvatarURL},
	}, log)
	defer client.Close()

	client.OnStatus(func(s realtime.Status) {
		if s == realtime.StatusDropped {
			fmt.Fprintln(os.Stderr, "! realtime connection lost, reconnecting")
			if err := client.Reconnect(ctx); err != nil {
				log.Warn().Err(err).Msg("reconnect failed")
			}
		}
	})

	tracker, err := client.StartPresence(ctx)
	if err != nil {
		return fmt.Errorf("start presence: %w", err)
	}
	tracker.OnChange(func(online map[string]chat.PresenceEntry) {
		fmt.Printf("-- %d online\n", len(online))
	})

	sess, err := client.OpenChannel(ctx, cfg.Client.Channel)
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	for _, m := range sess.Messages() {
		printMessage(m)
	}
	fmt.Printf("joined #%s as %s — type to send, ^D to quit\n", cfg.Client.Channel, name)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if _, err := sess.Send(ctx, line); err != nil {
				fmt.Fprintf(os.Stderr, "! send failed: %v\n", err)
				continue
			}
			if m := latest(sess.Messages()); m != nil {
				printMessage(*m)
			}
		}
	}
}

func latest(msgs []chat.Message) *chat.Message {
	if len(msgs) == 0 {
		return nil
	}
	return &msgs[len(msgs)-1]
}

func printMessage(m chat.Message) {
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.Author.Name, m.Content)
}
