package main

import (
	"fmt"
	"strings"

	"messenger/db"
	"messenger/logger"
	"messenger/models"
	"messenger/services"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	seedUsers    int
	seedMessages int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the database with fake users, friendships and messages",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().IntVar(&seedUsers, "users", 10, "number of users to create")
	seedCmd.Flags().IntVar(&seedMessages, "messages", 5, "messages per friendship")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	if _, err := bootstrap(); err != nil {
		return err
	}
	defer logger.Sync()
	if err := db.ConnectDB(); err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()

	users := make([]models.User, 0, seedUsers)
	for i := 0; i < seedUsers; i++ {
		name := gofakeit.FirstName()
		users = append(users, models.User{
			ID:        gofakeit.UUID(),
			Nickname:  fmt.Sprintf("%s_%s", strings.ToLower(name), gofakeit.Numerify("######")),
			FirstName: name,
			LastName:  gofakeit.LastName(),
		})
	}
	if err := db.Writer(ctx, db.ORM).Create(&users).Error; err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}

	friends := services.NewFriendService(db.ORM)
	store := services.NewMessageStore(db.ORM, nil)
	for i := 0; i+1 < len(users); i += 2 {
		a, b := users[i].ID, users[i+1].ID
		if err := friends.AddFriend(ctx, a, b); err != nil {
			return err
		}
		if err := friends.ApproveFriend(ctx, b, a); err != nil {
			return err
		}
		for j := 0; j < seedMessages; j++ {
			from, to := a, b
			if j%2 == 1 {
				from, to = b, a
			}
			_, err := store.Create(ctx, services.CreateParams{
				Sender:    from,
				Recipient: to,
				Content:   services.TextContent(gofakeit.Phrase()),
			})
			if err != nil {
				return err
			}
		}
	}

	logger.Log.Info("seed complete", zap.Int("users", len(users)))
	return nil
}
