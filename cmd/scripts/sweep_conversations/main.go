package main

import (
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"

	"github.com/wuwenbin0122/marefa.ai/internal/db"
	"github.com/wuwenbin0122/marefa.ai/internal/utils"
)

func main() {
	_ = godotenv.Load()

	cfg, err := utils.LoadStoreConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	maxAge := flag.Duration("max-age", cfg.Conversation.MaxAge, "remove conversations idle longer than this")
	flag.Parse()

	ctx := context.Background()
	conversations, err := db.OpenPersistent(ctx, cfg)
	if err != nil {
		log.Fatalf("open %s store: %v", cfg.Store.Backend, err)
	}
	defer conversations.Close(ctx)

	removed, err := conversations.SweepExpired(ctx, *maxAge)
	if err != nil {
		log.Fatalf("sweep conversations: %v", err)
	}

	for _, id := range removed {
		log.Printf("removed %s", id)
	}
	log.Printf("swept %d conversations idle longer than %s", len(removed), *maxAge)
}
