package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

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

	ctx := context.Background()
	conversations, err := db.OpenPersistent(ctx, cfg)
	if err != nil {
		log.Fatalf("open %s store: %v", cfg.Store.Backend, err)
	}
	defer conversations.Close(ctx)

	summaries, err := conversations.List(ctx)
	if err != nil {
		log.Fatalf("list conversations: %v", err)
	}

	fmt.Printf("%d conversations in %s store:\n", len(summaries), cfg.Store.Backend)
	for _, s := range summaries {
		fmt.Printf("- %s messages=%d created=%s last_activity=%s\n",
			s.ID, s.MessageCount, s.CreatedAt.Format(time.RFC3339), s.LastActivity.Format(time.RFC3339))
	}

	if len(os.Args) > 1 {
		conv, err := conversations.Get(ctx, os.Args[1])
		if err != nil {
			log.Fatalf("get conversation %s: %v", os.Args[1], err)
		}
		fmt.Printf("\nconversation %s:\n", conv.ID)
		for _, m := range conv.Messages {
			fmt.Printf("[%s] %s: %s\n", m.Timestamp.Format(time.RFC3339), m.Role, m.Content)
		}
	}
}
