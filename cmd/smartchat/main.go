package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	clientauth "smartchat/internal/client/auth"
	clientchat "smartchat/internal/client/chat"
	"smartchat/internal/client/transport"
	"smartchat/internal/config"
	"smartchat/internal/models"
	"smartchat/pkg/logger"
)

type app struct {
	auth   *clientauth.Manager
	syncer *clientchat.Synchronizer
	repo   *clientchat.Repository
	in     *bufio.Reader
}

func main() {
	cfgPath := os.Getenv("SMARTCHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	baseURL := cfg.Client.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	credFile := cfg.Client.CredentialFile
	if credFile == "" {
		home, _ := os.UserHomeDir()
		credFile = filepath.Join(home, ".smartchat", "credentials.json")
	}

	httpClient := transport.NewHTTPClient(cfg.Client.Timeout())
	mgr, err := clientauth.NewManager(baseURL, httpClient, clientauth.NewStore(credFile))
	if err != nil {
		logger.Fatalf("init auth: %v", err)
	}

	repo := clientchat.NewRepository()
	tc := transport.NewClient(baseURL, cfg.Client.Timeout(), mgr.Token)
	rc := clientchat.NewReconciler(repo, tc)
	syncer := clientchat.NewSynchronizer(repo, tc, rc, mgr)

	a := &app{auth: mgr, syncer: syncer, repo: repo, in: bufio.NewReader(os.Stdin)}
	a.run()
}

func (a *app) run() {
	ctx := context.Background()
	if a.auth.Valid() {
		if user, ok := a.auth.CurrentUser(); ok {
			fmt.Printf("Logged in as %s\n", user.Email)
		}
		if err := a.syncer.Bootstrap(ctx); err != nil {
			fmt.Printf("Startup sync failed: %v\n", err)
		}
	} else {
		fmt.Println("Not logged in. Use /login or /register.")
	}
	a.printCurrent()

	for {
		fmt.Print("> ")
		line, err := a.in.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			a.send(ctx, line)
			continue
		}
		parts := strings.SplitN(line, " ", 2)
		arg := ""
		if len(parts) == 2 {
			arg = strings.TrimSpace(parts[1])
		}
		switch parts[0] {
		case "/quit", "/exit":
			return
		case "/help":
			a.printHelp()
		case "/login":
			a.login(ctx)
		case "/register":
			a.register(ctx)
		case "/logout":
			a.logout(ctx)
		case "/list":
			a.list("")
		case "/search":
			a.list(arg)
		case "/new":
			a.newChat(ctx)
		case "/select":
			a.selectSession(ctx, arg)
		case "/messages":
			a.printMessages()
		default:
			fmt.Printf("Unknown command %s, try /help\n", parts[0])
		}
	}
}

func (a *app) printHelp() {
	fmt.Println(`Commands:
  /login             log in with email and password
  /register          create an account
  /logout            log out and clear stored credentials
  /list              list chat sessions
  /search <query>    filter sessions by title or preview
  /new               start a new chat session
  /select <number>   switch to a session from /list
  /messages          show the current session transcript
  /quit              exit
Any other input is sent as a message to the current session.`)
}

func (a *app) prompt(label string) string {
	fmt.Print(label)
	line, _ := a.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func (a *app) login(ctx context.Context) {
	email := a.prompt("Email: ")
	password := a.prompt("Password: ")
	user, err := a.auth.Login(ctx, email, password)
	if err != nil {
		fmt.Printf("Login failed: %v\n", err)
		return
	}
	fmt.Printf("Welcome back, %s\n", user.Email)
	if err := a.syncer.Bootstrap(ctx); err != nil {
		fmt.Printf("Sync failed: %v\n", err)
		return
	}
	a.printCurrent()
}

func (a *app) register(ctx context.Context) {
	email := a.prompt("Email: ")
	fullName := a.prompt("Full name: ")
	password := a.prompt("Password: ")
	if _, err := a.auth.Register(ctx, email, password, fullName); err != nil {
		fmt.Printf("Registration failed: %v\n", err)
		return
	}
	fmt.Println("Account created.")
	if _, err := a.auth.Login(ctx, email, password); err != nil {
		fmt.Printf("Login failed: %v\n", err)
		return
	}
	if err := a.syncer.Bootstrap(ctx); err != nil {
		fmt.Printf("Sync failed: %v\n", err)
	}
	a.printCurrent()
}

func (a *app) logout(ctx context.Context) {
	if err := a.auth.Logout(ctx); err != nil {
		fmt.Printf("Logout: %v\n", err)
	}
	a.syncer.Teardown()
	fmt.Println("Logged out.")
}

func (a *app) list(query string) {
	sessions := clientchat.FilterSessions(a.repo.Sessions(), query)
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return
	}
	current := a.repo.CurrentID()
	for i, s := range sessions {
		marker := " "
		if s.ID == current {
			marker = "*"
		}
		fmt.Printf("%s %2d. %s (%s)\n", marker, i+1, s.DisplayTitle(), s.Timestamp.Format("Jan 2 15:04"))
	}
}

func (a *app) newChat(ctx context.Context) {
	session, err := a.syncer.CreateNewChat(ctx)
	if err != nil {
		fmt.Printf("%v\n", err)
		return
	}
	fmt.Printf("Started %q\n", session.DisplayTitle())
}

func (a *app) selectSession(ctx context.Context, arg string) {
	sessions := a.repo.Sessions()
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 1 || idx > len(sessions) {
		fmt.Println("Usage: /select <number from /list>")
		return
	}
	if err := a.syncer.Select(ctx, sessions[idx-1].ID); err != nil {
		fmt.Printf("%v\n", err)
		return
	}
	a.printCurrent()
	a.printMessages()
}

func (a *app) send(ctx context.Context, text string) {
	outcome, err := a.syncer.SendMessage(ctx, text)
	if err != nil {
		fmt.Printf("%v\n", err)
		return
	}
	if outcome.Err != nil {
		fmt.Printf("Delivery failed: %v\n", outcome.Err)
	}
	if outcome.Reply != nil {
		fmt.Printf("assistant: %s\n", outcome.Reply.Text)
	}
}

func (a *app) printCurrent() {
	if s, ok := a.repo.Current(); ok {
		fmt.Printf("Current session: %s (%d messages)\n", s.DisplayTitle(), a.repo.MessageCount(s.ID))
	}
}

func (a *app) printMessages() {
	s, ok := a.repo.Current()
	if !ok {
		fmt.Println("No session selected.")
		return
	}
	for _, m := range s.Messages {
		label := "you"
		if m.Sender == models.SenderAssistant {
			label = "assistant"
		}
		suffix := ""
		if m.Status == models.StatusFailed && !m.Synthetic {
			suffix = " [failed]"
		}
		fmt.Printf("%s: %s%s\n", label, m.Text, suffix)
	}
}
