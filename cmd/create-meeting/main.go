package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"roomgate/backend/internal/auth"
	"roomgate/backend/internal/bootstrap"
	"roomgate/backend/internal/config"
	"roomgate/backend/internal/logger"
	"roomgate/backend/internal/pin"
	"roomgate/backend/internal/service"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: create-meeting <owner-id> <name> [delegate,delegate...]")
		os.Exit(1)
	}

	ownerID := os.Args[1]
	name := os.Args[2]
	var delegates []string
	if len(os.Args) >= 4 {
		for _, d := range strings.Split(os.Args[3], ",") {
			if d = strings.TrimSpace(d); d != "" {
				delegates = append(delegates, d)
			}
		}
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 创建存储
	log := logger.NewDevelopmentLogger()
	defer func() { _ = log.Sync() }()
	clock := clockwork.NewRealClock()
	store, err := bootstrap.OpenStore(&cfg.Database, log)
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	authority, err := auth.NewAuthority(cfg.Security.InstallationSecret, clock)
	if err != nil {
		fmt.Printf("Failed to initialize hash authority: %v\n", err)
		os.Exit(1)
	}
	resolver := auth.NewResolver(authority, cfg.Features.AuthenticatedAttendee)
	allocator := pin.NewAllocator(store, clock, pin.Options{
		Retention:   cfg.Pin.Retention,
		MaxAttempts: cfg.Pin.MaxAttempts,
	}, log)
	meetings := service.NewMeetingService(store, allocator, authority, resolver, cfg.Server.PublicURL, log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	meeting, err := meetings.Create(ctx, service.CreateMeetingInput{
		Name:      name,
		OwnerID:   ownerID,
		Delegates: delegates,
	})
	if err != nil {
		fmt.Printf("Failed to create meeting: %v\n", err)
		os.Exit(1)
	}

	// 为所有者签发访问令牌，便于直接调用管理接口
	token, err := auth.NewPrincipalTokens(&cfg.JWT, clock).Issue(auth.Principal{ID: ownerID})
	if err != nil {
		fmt.Printf("Failed to issue owner token: %v\n", err)
		os.Exit(1)
	}

	links := meetings.Links(meeting)

	fmt.Println("Meeting created successfully!")
	fmt.Printf("ID:           %s\n", meeting.ID)
	fmt.Printf("Identifier:   %s\n", meeting.Identifier)
	fmt.Printf("Name:         %s\n", meeting.Name)
	fmt.Printf("PIN:          %s\n", meeting.PIN)
	fmt.Printf("Voice bridge: %s\n", meeting.VoiceBridge)
	fmt.Printf("Attendee:     %s\n", links.Attendee)
	fmt.Printf("Moderator:    %s\n", links.Moderator)
	if links.AuthenticatedAttendee != "" {
		fmt.Printf("Signed-in:    %s\n", links.AuthenticatedAttendee)
	}
	fmt.Printf("Owner token:  %s (expires in %ds)\n", token.AccessToken, token.ExpiresIn)

	if cfg.Database.Type == "" {
		fmt.Println("\nNote: memory storage is not persisted; set ROOMGATE_DATABASE_TYPE to keep this meeting.")
	}
}
