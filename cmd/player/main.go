package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pterm/pterm"
	"github.com/urfave/cli"

	"crashround/internal/auth"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	URLFName      = "url"
	TokenFName    = "token"
	SecretFName   = "secret"
	UserIDFName   = "user-id"
	UsernameFName = "username"
)

// player is a terminal client for the crash round websocket.
func main() {
	app := cli.NewApp()
	app.Name = "player"
	app.Usage = "join the crash round from a terminal"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: URLFName, Value: "ws://localhost:8080/ws", Usage: "websocket endpoint"},
		cli.StringFlag{Name: TokenFName, Usage: "bearer token", EnvVar: "PLAYER_TOKEN"},
		cli.StringFlag{Name: SecretFName, Usage: "signing secret used to mint a local token when --token is not given", EnvVar: "JWT_SECRET"},
		cli.Int64Flag{Name: UserIDFName, Value: 1, Usage: "user id for a minted token"},
		cli.StringFlag{Name: UsernameFName, Value: "player", Usage: "username for a minted token"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	token, err := tokenFor(c)
	if err != nil {
		return err
	}

	endpoint, err := url.Parse(c.String(URLFName))
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	q := endpoint.Query()
	q.Set("token", token)
	endpoint.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(endpoint.String(), nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %s", c.String(URLFName), resp.Status)
		}
		return fmt.Errorf("dial %s: %w", c.String(URLFName), err)
	}
	defer conn.Close()

	pterm.Info.Printfln("connected to %s", c.String(URLFName))
	pterm.Info.Println("commands: bet <amount> | cash | ping | quit")

	p := &player{conn: conn}
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.readLoop()
	}()

	lines := make(chan string)
	go scanLines(lines)

	for {
		select {
		case <-done:
			return nil
		case line, ok := <-lines:
			if !ok {
				return p.close()
			}
			quit, err := p.command(line)
			if err != nil {
				pterm.Warning.Println(err)
			}
			if quit {
				return p.close()
			}
		}
	}
}

func tokenFor(c *cli.Context) (string, error) {
	if token := c.String(TokenFName); token != "" {
		return token, nil
	}
	secret := c.String(SecretFName)
	if secret == "" {
		return "", errors.New("either --token or --secret is required")
	}
	return auth.NewVerifier(secret).Issue(c.Int64(UserIDFName), c.String(UsernameFName), false, 24*time.Hour)
}

func scanLines(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

type player struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

type outgoing struct {
	Type   string   `json:"type"`
	Amount *float64 `json:"amount,omitempty"`
}

func (p *player) command(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "bet", "b":
		if len(fields) != 2 {
			return false, errors.New("usage: bet <amount>")
		}
		amount, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return false, fmt.Errorf("invalid amount %q", fields[1])
		}
		return false, p.send(outgoing{Type: "placeBet", Amount: &amount})
	case "cash", "c":
		return false, p.send(outgoing{Type: "cashOut"})
	case "ping":
		return false, p.send(outgoing{Type: "ping"})
	case "quit", "q", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
}

func (p *player) send(msg outgoing) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, data)
}

func (p *player) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return p.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (p *player) readLoop() {
	for {
		_, message, err := p.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				pterm.Error.Printfln("connection closed: %v", err)
			}
			return
		}
		var ev envelope
		if err := json.Unmarshal(message, &ev); err != nil {
			pterm.Warning.Printfln("unreadable message: %s", message)
			continue
		}
		render(ev)
	}
}
