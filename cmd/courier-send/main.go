// courier-send is a small terminal client for a courier server: log in,
// send text or media into a conversation, or follow it live.
package main

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vedran77/courier/pkg/chatclient"
)

var (
	serverURL string
	token     string
)

func main() {
	root := &cobra.Command{
		Use:           "courier-send",
		Short:         "Send and follow courier messages from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", envOr("COURIER_SERVER", "http://localhost:8080"), "server base URL")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("COURIER_TOKEN"), "access token (or COURIER_TOKEN)")

	root.AddCommand(loginCmd(), textCmd(), mediaCmd(), watchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newClient() *chatclient.Client {
	return chatclient.New(serverURL, chatclient.WithToken(token))
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Printf("logged in as %s\n", resp.User.Username)
			fmt.Printf("export COURIER_TOKEN=%s\n", resp.AccessToken)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}

func textCmd() *cobra.Command {
	var convID, body, replyTo string
	cmd := &cobra.Command{
		Use:   "text",
		Short: "Send a text message",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(convID)
			if err != nil {
				return fmt.Errorf("invalid conversation id: %w", err)
			}
			var reply *uuid.UUID
			if replyTo != "" {
				r, err := uuid.Parse(replyTo)
				if err != nil {
					return fmt.Errorf("invalid reply-to id: %w", err)
				}
				reply = &r
			}
			msg, err := newClient().SendText(cmd.Context(), id, body, reply)
			if err != nil {
				return err
			}
			fmt.Printf("sent %s at %s\n", msg.ID, msg.CreatedAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&convID, "conversation", "", "conversation id")
	cmd.Flags().StringVar(&body, "body", "", "message body")
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "message id to reply to")
	cmd.MarkFlagRequired("conversation")
	cmd.MarkFlagRequired("body")
	return cmd
}

func mediaCmd() *cobra.Command {
	var convID, file, kind, caption string
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Upload a file and send it as a media message",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(convID)
			if err != nil {
				return fmt.Errorf("invalid conversation id: %w", err)
			}
			payload, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			contentType := mime.TypeByExtension(filepath.Ext(file))
			if contentType == "" {
				contentType = http.DetectContentType(payload)
			}

			done := make(chan chatclient.UploadItem, 1)
			queue := chatclient.NewUploadQueue(newClient(), func(item chatclient.UploadItem) {
				switch item.State {
				case chatclient.StateUploading:
					if item.Total > 0 {
						fmt.Printf("\ruploading %d%%", item.Sent*100/item.Total)
					}
				case chatclient.StateCompleted, chatclient.StateFailed:
					select {
					case done <- item:
					default:
					}
				}
			})
			defer queue.Close()

			queue.Enqueue(id, kind, contentType, caption, nil, payload)

			select {
			case item := <-done:
				fmt.Println()
				if item.State == chatclient.StateFailed {
					return fmt.Errorf("upload failed: %s", item.Reason)
				}
				fmt.Printf("sent %s\n", item.Message.ID)
				return nil
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		},
	}
	cmd.Flags().StringVar(&convID, "conversation", "", "conversation id")
	cmd.Flags().StringVar(&file, "file", "", "path to the media file")
	cmd.Flags().StringVar(&kind, "kind", "image", "media kind: image, video or audio")
	cmd.Flags().StringVar(&caption, "caption", "", "optional caption")
	cmd.MarkFlagRequired("conversation")
	cmd.MarkFlagRequired("file")
	return cmd
}

func watchCmd() *cobra.Command {
	var convID string
	var limit int
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a conversation live",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(convID)
			if err != nil {
				return fmt.Errorf("invalid conversation id: %w", err)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			client := newClient()
			stream, err := client.Subscribe(ctx)
			if err != nil {
				return err
			}
			defer stream.Close()

			go client.RunHeartbeat(ctx, 0)

			if err := stream.Watch(ctx, chatclient.Query{
				Kind:           chatclient.QueryMessages,
				ConversationID: id,
				Limit:          limit,
			}); err != nil {
				return err
			}

			for update := range stream.Updates() {
				switch update.Type {
				case "result":
					if update.Ended() {
						return fmt.Errorf("conversation no longer visible")
					}
					page, err := update.Messages()
					if err != nil {
						return err
					}
					fmt.Printf("--- %d messages ---\n", len(page.Messages))
					for _, msg := range page.Messages {
						printMessage(msg)
					}
				case "typing":
					if update.Typing.Typing {
						fmt.Printf("* %s is typing\n", update.Typing.UserID)
					}
				case "presence":
					state := "offline"
					if update.Presence.Online {
						state = "online"
					}
					fmt.Printf("* %s is %s\n", update.Presence.UserID, state)
				case "error":
					fmt.Fprintf(os.Stderr, "server error %s: %s\n", update.Code, update.Message)
				}
			}
			return stream.Err()
		},
	}
	cmd.Flags().StringVar(&convID, "conversation", "", "conversation id")
	cmd.Flags().IntVar(&limit, "limit", 40, "messages per delivery")
	cmd.MarkFlagRequired("conversation")
	return cmd
}

func printMessage(msg chatclient.Message) {
	sender := msg.SenderDisplayName
	if sender == "" {
		sender = msg.SenderID.String()
	}
	line := fmt.Sprintf("[%s] %s: %s", msg.CreatedAt.Format("15:04:05"), sender, msg.Body)
	if msg.Media != nil {
		line += fmt.Sprintf(" (%s %s)", msg.Media.Kind, msg.Media.URL)
	}
	if msg.EditedAt != nil {
		line += " (edited)"
	}
	if msg.Status != nil {
		line += " [" + msg.Status.State + "]"
	}
	fmt.Println(line)
}
