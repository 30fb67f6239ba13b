// Command client is a terminal chat client for development and support use.
// It drives the session controller against the HTTP API for store access and
// the redis change feed for real-time delivery.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"academy-chat/internal/feed"
	"academy-chat/internal/message"
	"academy-chat/internal/session"
)

type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// List implements session.MessageAPI.
func (c *apiClient) List(ctx context.Context, conversationID string) ([]message.Message, error) {
	var msgs []message.Message
	err := c.do(ctx, http.MethodGet, "/api/conversations/"+conversationID+"/messages", nil, &msgs)
	return msgs, err
}

// Append implements session.MessageAPI.
func (c *apiClient) Append(ctx context.Context, conversationID, content string) (*message.Message, error) {
	var msg message.Message
	err := c.do(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/messages",
		map[string]string{"content": content}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkRead implements session.ReadMarker.
func (c *apiClient) MarkRead(ctx context.Context, conversationID string) bool {
	var res struct {
		Success bool `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/read", nil, &res); err != nil {
		log.Printf("mark read: %v", err)
		return false
	}
	return res.Success
}

func main() {
	api := flag.String("api", "http://localhost:8080", "chat API base URL")
	redisAddr := flag.String("redis", "", "redis address for the change feed (defaults to REDIS_ADDR)")
	username := flag.String("username", "", "login username")
	password := flag.String("password", "", "login password")
	with := flag.String("with", "", "user id to chat with")
	flag.Parse()

	_ = godotenv.Load()
	if *redisAddr == "" {
		*redisAddr = os.Getenv("REDIS_ADDR")
		if *redisAddr == "" {
			*redisAddr = "localhost:6379"
		}
	}
	if *username == "" || *password == "" || *with == "" {
		log.Fatal("-username, -password and -with are required")
	}

	client := &apiClient{base: *api, http: &http.Client{Timeout: 15 * time.Second}}

	var login struct {
		AccessToken string `json:"access_token"`
		ID          string `json:"id"`
	}
	err := client.do(context.Background(), http.MethodPost, "/login",
		map[string]string{"username": *username, "password": *password}, &login)
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	client.token = login.AccessToken

	var conv struct {
		ConversationID string `json:"conversation_id"`
	}
	err = client.do(context.Background(), http.MethodPost, "/api/conversations",
		map[string]string{"other_user_id": *with}, &conv)
	if err != nil {
		log.Fatalf("resolve conversation: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	defer rdb.Close()

	controller := session.NewController(client, client,
		session.NewFeedAdapter(feed.NewSubscriber(rdb)), nil)
	defer controller.Close()

	controller.Start()
	controller.Select(context.Background(), conv.ConversationID)

	// Render loop: print whatever lands in the visible thread.
	printed := make(map[string]bool)
	go func() {
		for {
			msgs, loading := controller.Visible()
			if !loading {
				for _, m := range msgs {
					if printed[m.ID] {
						continue
					}
					printed[m.ID] = true
					name := m.SenderName
					if name == "" {
						if m.SenderID == login.ID {
							name = "me"
						} else {
							name = "them"
						}
					}
					fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04"), name, m.Content)
				}
			}
			time.Sleep(300 * time.Millisecond)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if text == "" {
			continue
		}
		if _, err := controller.Send(context.Background(), text); err != nil {
			log.Printf("send: %v", err)
		}
	}
}
