package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/studioalign/studio07-sub001/internal/core/channels"
	"github.com/studioalign/studio07-sub001/internal/core/posts"
	"github.com/studioalign/studio07-sub001/internal/devserver"
	"github.com/studioalign/studio07-sub001/internal/feed"
	"github.com/studioalign/studio07-sub001/internal/identity"
	"github.com/studioalign/studio07-sub001/internal/realtime"
	"github.com/studioalign/studio07-sub001/internal/studio"
)

func main() {
	channelFlag := flag.String("channel", "", "channel id to tail")
	devFlag := flag.Bool("dev", false, "run an embedded in-memory backend with demo data")
	flag.Parse()

	baseURL := os.Getenv("STUDIO_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	token := os.Getenv("STUDIO_TOKEN")
	userID := os.Getenv("STUDIO_USER_ID")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	channelID := *channelFlag

	if *devFlag {
		srv := devserver.New()
		owner := channels.Member{UserID: "user-demo", DisplayName: "Demo Teacher", Role: channels.RoleOwner}
		ch := srv.SeedChannel("Studio Updates", "Announcements and class notes", []channels.Member{owner})
		srv.SeedPost(ch.ID, posts.Author{ID: owner.UserID, DisplayName: owner.DisplayName},
			"Welcome to the channel!", time.Now().UTC().Add(-time.Hour))

		addr := strings.TrimPrefix(baseURL, "http://")
		go func() {
			log.Printf("Dev backend listening on %s", addr)
			if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
				log.Fatal("Dev backend failed:", err)
			}
		}()

		channelID = ch.ID
		token = owner.UserID
		userID = owner.UserID
		// Give the listener a moment before connecting
		time.Sleep(200 * time.Millisecond)
	}

	if channelID == "" {
		log.Fatal("A channel id is required: pass -channel or use -dev")
	}
	if userID == "" {
		userID = token
	}

	resolver := identity.NewResolver(baseURL, token, nil)
	client, err := studio.NewClient(studio.Config{
		BaseURL:     baseURL,
		AccessToken: token,
		Resolver:    resolver,
	})
	if err != nil {
		log.Fatal("Failed to create backend client:", err)
	}

	reconciler := feed.New(client, posts.Author{ID: userID}, nil)
	reconciler.OnChange(func() { render(reconciler.Snapshot()) })

	subscriber := realtime.NewSubscriber(baseURL)
	defer subscriber.Close()
	subscriber.Subscribe(ctx, channelID, reconciler.Handlers())

	if err := reconciler.Load(ctx, channelID); err != nil {
		log.Fatal("Failed to load channel:", err)
	}

	fmt.Printf("Tailing channel %s on %s (Ctrl-C to stop)\n", channelID, baseURL)
	<-ctx.Done()
	log.Println("Shutting down")
}

func render(snap feed.Snapshot) {
	if snap.Err != nil {
		fmt.Printf("-- error: %v\n", snap.Err)
		return
	}
	if snap.LoadingPosts {
		fmt.Println("-- loading...")
		return
	}
	name := "?"
	if snap.Channel != nil {
		name = snap.Channel.Name
	}
	fmt.Printf("== %s (%d posts)\n", name, len(snap.Posts))
	for _, p := range snap.Posts {
		edited := ""
		if p.EditedAt != nil {
			edited = " (edited)"
		}
		fmt.Printf("  [%s] %s%s | %d reactions, %d comments\n",
			p.Author.DisplayName, p.Content, edited, len(p.Reactions), len(p.Comments))
		for _, c := range p.Comments {
			fmt.Printf("      %s: %s\n", c.Author.DisplayName, c.Content)
		}
	}
}
