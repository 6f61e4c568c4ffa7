package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"chat-client/internal/api"
	"chat-client/internal/archive"
	"chat-client/internal/control"
	"chat-client/internal/fingerprint"
	"chat-client/internal/observability"
	"chat-client/internal/rabbitmq"
	"chat-client/internal/session"
	"chat-client/internal/store"
	"chat-client/internal/telemetry"
)

func main() {
	root := &cobra.Command{
		Use:   "chat-client",
		Short: "Headless client for the room chat backend",
	}
	root.AddCommand(runCmd(), deviceIDCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Subscribe to rooms and mirror their live streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func deviceIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "device-id",
		Short: "Print this installation's device fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(getEnv("DATA_DIR", defaultDataDir()))
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Println(fingerprint.GetOrCreateDeviceID(st, fingerprint.HostAttributes()))
			return nil
		},
	}
}

func run(ctx context.Context) error {
	st, err := store.Open(getEnv("DATA_DIR", defaultDataDir()))
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer st.Close()

	deviceID := fingerprint.GetOrCreateDeviceID(st, fingerprint.HostAttributes())
	log.Printf("device id: %s", deviceID)

	shutdownTracing, err := observability.SetupTracing(ctx, os.Getenv("OTLP_ENDPOINT"), "chat-client")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	publisher := rabbitmq.NewPublisher(os.Getenv("AMQP_URL"), getEnv("AMQP_EXCHANGE", "chat_events"))
	defer publisher.Close()
	observability.SetPublisher(publisher)
	log.Printf("telemetry publisher mode=%s", rabbitmq.PublisherMode(publisher))

	apiClient := api.NewClient(getEnv("API_BASE", "http://localhost:8001/api"), deviceID)

	userID, userName, err := resolveIdentity(ctx, apiClient, st, deviceID)
	if err != nil {
		return err
	}
	log.Printf("running as user_id=%s user_name=%q", userID, userName)

	var archiver session.Archiver
	var recent control.RecentArchive
	if dsn := os.Getenv("ARCHIVE_DSN"); dsn != "" {
		db, err := archive.Connect(dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		a := archive.New(db)
		archiver = a
		recent = a
	}

	emitter := telemetry.NewAuditEmitter(publisher,
		getEnv("AUDIT_ROUTING_KEY", "audit_log.chat_client"),
		"chat-client", getEnv("ENVIRONMENT", "development"), deviceID)

	manager := session.NewManager(getEnv("WS_BASE", "ws://localhost:8001"), userID, userName, apiClient, archiver)
	defer manager.CloseAll()

	emitter.Emit(ctx, "info", "client started", "", &userID)
	for _, roomID := range splitRooms(os.Getenv("ROOM_IDS")) {
		if _, err := manager.Open(ctx, roomID); err != nil {
			log.Printf("room %s: history load failed, live feed only: %v", roomID, err)
		}
		emitter.Emit(ctx, "info", "room subscribed", roomID, &userID)
	}

	cacheRoomList(ctx, apiClient, st, userID)

	router := control.NewRouter(manager, manager, recent, os.Getenv("CONTROL_TOKEN"))
	srv := &http.Server{Addr: getEnv("CONTROL_ADDR", "127.0.0.1:8090"), Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("control server error: %v", err)
		}
	}()
	log.Printf("control surface listening on %s", srv.Addr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	emitter.Emit(context.Background(), "info", "client stopping", "", &userID)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// resolveIdentity logs in when credentials are configured, otherwise
// falls back to an explicit USER_ID or the device fingerprint.
func resolveIdentity(ctx context.Context, apiClient *api.Client, st *store.Store, deviceID string) (string, string, error) {
	username := os.Getenv("CHAT_USERNAME")
	password := os.Getenv("CHAT_PASSWORD")
	if username != "" && password != "" {
		user, err := apiClient.Login(ctx, username, password)
		if err != nil {
			return "", "", fmt.Errorf("login: %w", err)
		}
		if err := st.SetJSON(store.KeyProfile, user); err != nil {
			log.Printf("cache profile failed: %v", err)
		}
		name := strings.TrimSpace(user.FirstName + " " + user.LastName)
		if name == "" {
			name = user.Username
		}
		return strconv.FormatInt(user.ID, 10), name, nil
	}

	userID := getEnv("USER_ID", deviceID)
	userName := getEnv("USER_NAME", "User "+userID)
	return userID, userName, nil
}

func cacheRoomList(ctx context.Context, apiClient *api.Client, st *store.Store, userID string) {
	rooms, err := apiClient.Rooms(ctx, userID)
	if err != nil {
		log.Printf("room list refresh failed: %v", err)
		return
	}
	if err := st.SetJSON(store.KeyRooms, rooms); err != nil {
		log.Printf("cache room list failed: %v", err)
	}
}

func splitRooms(raw string) []string {
	var rooms []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			rooms = append(rooms, part)
		}
	}
	return rooms
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chat-client"
	}
	return home + "/.chat-client"
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
