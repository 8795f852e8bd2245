package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"medchat-proxy/internal/logger"
	"medchat-proxy/pkg/client"
)

// Shown when the proxy cannot answer.
var fallbackReplies = map[string]string{
	"fr": "Le service est momentanément indisponible. En cas d'urgence, appelez le 15 ou rendez-vous aux urgences les plus proches. Sinon, **consultez un professionnel de santé**.",
	"ar": "الخدمة ماشي متوفرة دابا. إلا كانت حالة مستعجلة، عيط على 15 ولا سير لأقرب مستعجلات. وإلا، **شوف طبيب مختص**.",
}

var reader = bufio.NewReader(os.Stdin)

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", envOr("CHAT_API_URL", "http://localhost:8000"), "chat proxy base URL")
	patient := flag.String("patient", envOr("CHAT_PATIENT_ID", ""), "patient id")
	language := flag.String("lang", envOr("CHAT_LANGUAGE", "fr"), "reply language (fr or ar)")
	timeout := flag.Duration("timeout", client.DefaultTimeout, "per-request timeout")
	verbose := flag.Bool("v", false, "log client warnings to stderr")
	flag.Parse()

	log := logger.Nop()
	if *verbose {
		log = logger.NewLogger(logger.Config{Level: "warn", Pretty: true, Output: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(*baseURL, client.Options{
		PatientID: *patient,
		Language:  *language,
		Timeout:   *timeout,
		Log:       log,
	})

	fmt.Println("Welcome to the medical chat CLI")
	if c.IsAvailable(ctx) {
		fmt.Printf("Connected to %s\n", *baseURL)
	} else {
		fmt.Printf("Warning: %s is not reachable, replies will fall back to a static message\n", *baseURL)
	}
	printHelp()

	for {
		input, ok := prompt("> ")
		if !ok {
			fmt.Println("\nGoodbye!")
			return
		}
		switch input {
		case "":
			continue
		case "/quit", "/exit":
			fmt.Println("Goodbye!")
			return
		case "/help":
			printHelp()
		case "/new":
			handleNewConversation(ctx, c)
		case "/history":
			handleHistory(ctx, c)
		default:
			handleMessage(ctx, c, input, *language)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func printHelp() {
	fmt.Println("\nType a message to chat, or one of:")
	fmt.Println("  /new      start a new conversation")
	fmt.Println("  /history  show the current conversation")
	fmt.Println("  /quit     exit")
}

func prompt(label string) (string, bool) {
	fmt.Print(label)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(input), true
}

func handleMessage(ctx context.Context, c *client.Client, message, language string) {
	fmt.Print("...")
	start := time.Now()
	res := c.SendMessage(ctx, message)
	fmt.Print("\r   \r")
	if !res.Success {
		reply, ok := fallbackReplies[language]
		if !ok {
			reply = fallbackReplies["fr"]
		}
		fmt.Printf("Bot: %s\n", reply)
		fmt.Printf("(error: %v)\n", res.Err)
		return
	}
	fmt.Printf("Bot: %s\n", res.Response)
	fmt.Printf("(%s, %s)\n", shortID(res.ConversationID), time.Since(start).Round(time.Millisecond))
}

func handleNewConversation(ctx context.Context, c *client.Client) {
	res := c.StartNewConversation(ctx)
	if !res.Success {
		fmt.Printf("Proxy unreachable (%v), using local conversation %s\n", res.Err, res.ConversationID)
		return
	}
	fmt.Printf("New conversation: %s\n", res.ConversationID)
}

func handleHistory(ctx context.Context, c *client.Client) {
	if c.ConversationID() == "" {
		fmt.Println("No conversation yet. Send a message first.")
		return
	}
	res := c.GetHistory(ctx, "")
	if !res.Success {
		fmt.Printf("Error: %v\n", res.Err)
		return
	}
	if len(res.History) == 0 {
		fmt.Println("No messages in this conversation.")
		return
	}
	fmt.Printf("\n=== Conversation %s ===\n", res.ConversationID)
	for _, m := range res.History {
		who := "You"
		if m.Sender == "assistant" {
			who = "Bot"
		}
		fmt.Printf("[%s] %s: %s\n", m.Timestamp, who, m.Message)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
