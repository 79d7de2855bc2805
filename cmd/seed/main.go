package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"counselpay/internal/config"
	"counselpay/internal/db"
	"counselpay/internal/model"
	"counselpay/internal/repository"
)

const seedCount = 50

var (
	methods = []model.PaymentMethod{
		model.MethodCard, model.MethodBankTransfer,
		model.MethodVirtualAccount, model.MethodMobile, model.MethodCash,
	}
	providersByMethod = map[model.PaymentMethod]model.PaymentProvider{
		model.MethodCard:           model.ProviderToss,
		model.MethodBankTransfer:   model.ProviderIamport,
		model.MethodVirtualAccount: model.ProviderToss,
		model.MethodMobile:         model.ProviderKakaoPay,
		model.MethodCash:           model.ProviderNone,
	}
)

func main() {
	log.Println("Starting seed script...")

	cfg := config.Load()

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Connected to database")

	if err := gormDB.AutoMigrate(&model.Payment{}, &model.PaymentEvent{}); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	repo := repository.NewPaymentRepository(gormDB)
	ctx := context.Background()

	created := 0
	for i := 0; i < seedCount; i++ {
		method := methods[rand.Intn(len(methods))]
		amount := decimal.NewFromInt(int64((rand.Intn(20) + 1) * 10000))
		payment := &model.Payment{
			OrderID:        fmt.Sprintf("SEED-%d-%03d", time.Now().Unix(), i),
			Amount:         amount,
			RefundedAmount: decimal.Zero,
			Method:         method,
			Provider:       providersByMethod[method],
			Status:         model.PaymentStatusPending,
			PayerID:        int64(rand.Intn(20) + 1),
			RecipientID:    int64(rand.Intn(5) + 1),
			BranchID:       int64(rand.Intn(3) + 1),
			Description:    "seeded counseling session payment",
			ExpiresAt:      time.Now().Add(30 * time.Minute),
		}

		if err := repo.Create(ctx, payment); err != nil {
			log.Printf("Skipping payment %s: %v", payment.OrderID, err)
			continue
		}
		created++
	}

	log.Printf("Seed completed: %d payments created", created)
}
