package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/webstickynotes/websticky/pkg/auth"
	"github.com/webstickynotes/websticky/pkg/config"
	"github.com/webstickynotes/websticky/pkg/logging"
	"github.com/webstickynotes/websticky/pkg/notes"
	"github.com/webstickynotes/websticky/pkg/relay"
	"github.com/webstickynotes/websticky/pkg/storage"
)

// Version information - set via ldflags during build
var (
	version   = "1.0.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var configPath string

func main() {
	flag.StringVar(&configPath, "config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("websticky %s (%s, built %s)\n", version, commit, buildDate)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "websticky: %v\n", err)
		os.Exit(1)
	}

	var runErr error
	switch args[0] {
	case "serve":
		runErr = runServe(cfg)
	case "login":
		runErr = runLogin(cfg)
	case "logout":
		runErr = runLogout(cfg)
	case "whoami":
		runErr = runWhoami(cfg)
	case "notes":
		runErr = runNotes(cfg, args[1:])
	case "focus":
		runErr = runFocus(cfg, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "websticky: unknown command %q\n", args[0])
		usage()
		os.Exit(2)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "websticky: %v\n", runErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `websticky - sticky notes for web pages, local or synced

Usage:
  websticky [flags] <command>

Commands:
  serve     run the privileged daemon (relay, storage, remote access)
  login     sign in through the browser
  logout    end the current session
  whoami    show the signed-in user, if any
  notes     list|create|update|delete notes
  focus     ask open UIs to focus a note

Flags:
  -config path   config file (default ~/.websticky/config.yaml)
  -version       print version and exit
`)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// runServe wires the whole privileged side together and blocks until a
// shutdown signal.
func runServe(cfg *config.Config) error {
	events, err := logging.NewLogger(cfg.Logging.Dir)
	if err != nil {
		return err
	}
	defer events.Close()
	events.SetMinLevel(logging.Level(cfg.Logging.Level))

	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	jar, err := auth.NewPersistentJar(store, events)
	if err != nil {
		return err
	}

	// One client, one cookie jar: the probe, the logout call, and the
	// note API all see the same ambient session.
	httpClient := &http.Client{
		Timeout:   30 * time.Second,
		Transport: notes.DefaultTransport(),
		Jar:       jar,
	}

	probe := auth.NewHTTPProbe(cfg.Remote.AuthBase, httpClient, events)
	handshake := auth.NewHandshake(probe, auth.BrowserSurface{}, cfg.Auth.PollInterval, cfg.Auth.LoginTimeout, events)
	facade := auth.NewFacade(probe, handshake, httpClient, cfg.Remote.AuthBase, events)

	remote := notes.NewRemoteClient(cfg.Remote.APIBase, httpClient, events)
	local := storage.NewLocalNotes(store)
	router := notes.NewRouter(facade, remote, local, events)

	oplog := log.New(os.Stderr, "websticky ", log.LstdFlags)
	server := relay.NewServer(relay.Config{
		BindAddress:    cfg.Relay.Bind,
		AllowedOrigins: cfg.Relay.AllowedOrigins,
		MaxClients:     cfg.Relay.MaxClients,
	}, facade, router, remote, events, oplog)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		oplog.Printf("received %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	return server.Start()
}

func dial(cfg *config.Config) (*relay.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return relay.Dial(ctx, "ws://"+cfg.Relay.Bind+"/ws")
}

func runLogin(cfg *config.Config) error {
	client, err := dial(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	// Login blocks for as long as the user takes to sign in; give it the
	// daemon's full ceiling plus slack.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Auth.LoginTimeout+30*time.Second)
	defer cancel()

	fmt.Println("Opening the sign-in page in your browser...")
	resp, err := client.Call(ctx, relay.TypeLogin, nil)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}

	var payload struct {
		User auth.UserInfo `json:"user"`
	}
	if err := relay.DecodeData(resp.Data, &payload); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s <%s>\n", payload.User.Name, payload.User.Email)
	return nil
}

func runLogout(cfg *config.Config) error {
	client, err := dial(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, relay.TypeLogout, nil)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	fmt.Println("Signed out.")
	return nil
}

func runWhoami(cfg *config.Config) error {
	client, err := dial(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, relay.TypeCheckAuth, nil)
	if err != nil {
		return err
	}

	var session auth.Session
	if resp.Data != nil {
		if err := relay.DecodeData(resp.Data, &session); err != nil {
			return err
		}
	}
	if session.User == nil {
		fmt.Println("Not signed in. Notes are stored on this device.")
		return nil
	}
	fmt.Printf("%s <%s>\n", session.User.Name, session.User.Email)
	return nil
}

func runNotes(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("notes requires a subcommand: list|create|update|delete")
	}

	client, err := dial(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "list":
		fs := flag.NewFlagSet("notes list", flag.ExitOnError)
		search := fs.String("search", "", "filter by title substring")
		website := fs.String("website", "", "filter by source website")
		fs.Parse(args[1:])

		params := map[string]string{}
		if *search != "" {
			params["search"] = *search
		} else if *website != "" {
			params["website"] = *website
		}
		resp, err := client.Call(ctx, relay.TypeAPIRequest, relay.APIRequestData{
			Endpoint: "/notes",
			Method:   http.MethodGet,
			Params:   params,
		})
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("%s", resp.Error)
		}
		var result []notes.Note
		if err := relay.DecodeData(resp.Data, &result); err != nil {
			return err
		}
		return printJSON(result)

	case "create":
		note, err := noteFromFlags("notes create", args[1:], false)
		if err != nil {
			return err
		}
		resp, err := client.Call(ctx, relay.TypeCreateNote, note)
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("%s", resp.Error)
		}
		var created notes.Note
		if err := relay.DecodeData(resp.Data, &created); err != nil {
			return err
		}
		return printJSON(created)

	case "update":
		note, err := noteFromFlags("notes update", args[1:], true)
		if err != nil {
			return err
		}
		resp, err := client.Call(ctx, relay.TypeUpdateNote, note)
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("%s", resp.Error)
		}
		var updated notes.Note
		if err := relay.DecodeData(resp.Data, &updated); err != nil {
			return err
		}
		return printJSON(updated)

	case "delete":
		fs := flag.NewFlagSet("notes delete", flag.ExitOnError)
		id := fs.String("id", "", "note id")
		fs.Parse(args[1:])
		if *id == "" {
			return fmt.Errorf("notes delete requires -id")
		}
		resp, err := client.Call(ctx, relay.TypeDeleteNote, relay.DeleteNoteData{NoteID: *id})
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("%s", resp.Error)
		}
		fmt.Println("Deleted.")
		return nil
	}

	return fmt.Errorf("unknown notes subcommand %q", args[0])
}

func runFocus(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("focus", flag.ExitOnError)
	id := fs.String("id", "", "note id")
	fs.Parse(args)
	if *id == "" {
		return fmt.Errorf("focus requires -id")
	}

	client, err := dial(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Call(ctx, relay.TypeFocusNote, map[string]string{"noteId": *id})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	return nil
}

func noteFromFlags(name string, args []string, requireID bool) (notes.Note, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	id := fs.String("id", "", "note id (update only)")
	title := fs.String("title", "", "note title")
	content := fs.String("content", "", "note content")
	website := fs.String("website", "", "source website")
	tags := fs.String("tags", "", "comma-separated tags")
	color := fs.String("color", string(notes.ColorYellow), "yellow|pink|blue")
	x := fs.Float64("x", 0, "x position")
	y := fs.Float64("y", 0, "y position")
	width := fs.Float64("width", 200, "note width")
	height := fs.Float64("height", 150, "note height")
	fs.Parse(args)

	if requireID && *id == "" {
		return notes.Note{}, fmt.Errorf("%s requires -id", name)
	}

	note := notes.Note{
		ID:       *id,
		Title:    *title,
		Content:  *content,
		Website:  *website,
		Color:    notes.Color(*color),
		Position: notes.Position{X: *x, Y: *y},
		Size:     notes.Size{Width: *width, Height: *height},
	}
	if *tags != "" {
		for _, tag := range strings.Split(*tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				note.Tags = append(note.Tags, tag)
			}
		}
	}
	return note, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
