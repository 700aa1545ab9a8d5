package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cobra"

	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

var (
	seedExpenseCategories = []string{"Groceries", "Rent", "Transport", "Dining", "Utilities", "Entertainment", "Health"}
	seedIncomeCategories  = []string{"Salary", "Freelance"}
)

type seedOptions struct {
	Users       int
	Months      int
	TxPerMonth  int
	Password    string
	RandomSeed  int64
	EmailDomain string
}

type seededUser struct {
	ID    int64
	Email string
}

type seedResult struct {
	Users        []seededUser
	Transactions int
	Budgets      int
}

// seeder fills a database with demo accounts through the same services the
// API uses, so every row passes the usual validation.
type seeder struct {
	users   *services.UserService
	ledger  *services.LedgerService
	budgets *services.BudgetService
	faker   *gofakeit.Faker
	now     func() time.Time
}

func newSeeder(users *services.UserService, ledger *services.LedgerService, budgets *services.BudgetService, randomSeed int64) *seeder {
	return &seeder{
		users:   users,
		ledger:  ledger,
		budgets: budgets,
		faker:   gofakeit.New(randomSeed),
		now:     time.Now,
	}
}

func (s *seeder) Run(ctx context.Context, opts seedOptions) (seedResult, error) {
	var res seedResult
	for i := 0; i < opts.Users; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		u, err := s.createUser(ctx, opts, i)
		if err != nil {
			return res, err
		}
		res.Users = append(res.Users, u)

		n, err := s.createBudgets(ctx, u.ID)
		if err != nil {
			return res, err
		}
		res.Budgets += n

		n, err = s.createTransactions(ctx, u.ID, opts)
		if err != nil {
			return res, err
		}
		res.Transactions += n
	}
	return res, nil
}

func (s *seeder) createUser(ctx context.Context, opts seedOptions, i int) (seededUser, error) {
	domain := opts.EmailDomain
	if domain == "" {
		domain = "example.com"
	}
	for attempt := 0; attempt < 5; attempt++ {
		username := s.faker.Username()
		email := fmt.Sprintf("%s.%d@%s", strings.ToLower(username), s.faker.Number(1000, 99999), domain)
		u, err := s.users.Signup(ctx, username, email, opts.Password)
		if errors.Is(err, services.ErrEmailTaken) {
			continue
		}
		if err != nil {
			return seededUser{}, fmt.Errorf("seed user %d: %w", i+1, err)
		}
		return seededUser{ID: u.ID, Email: u.Email}, nil
	}
	return seededUser{}, fmt.Errorf("seed user %d: could not find a free email", i+1)
}

func (s *seeder) createBudgets(ctx context.Context, userID int64) (int, error) {
	categories := append([]string(nil), seedExpenseCategories...)
	s.faker.ShuffleStrings(categories)
	count := s.faker.Number(2, 4)

	total := 0
	for _, category := range categories[:count] {
		amount := s.faker.Number(10, 80) * 10
		total += amount
		if _, err := s.budgets.Create(ctx, userID, services.BudgetInput{
			Category: category,
			Amount:   fmt.Sprintf("%d", amount),
		}); err != nil {
			return 0, fmt.Errorf("seed budget %s: %w", category, err)
		}
	}

	total += s.faker.Number(0, 50) * 10
	if _, err := s.budgets.SetTotalBudget(ctx, userID, fmt.Sprintf("%d", total)); err != nil {
		return 0, fmt.Errorf("seed total budget: %w", err)
	}
	return count, nil
}

func (s *seeder) createTransactions(ctx context.Context, userID int64, opts seedOptions) (int, error) {
	now := s.now()
	created := 0
	for m := 0; m < opts.Months; m++ {
		first := time.Date(now.Year(), now.Month()-time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		lastDay := first.AddDate(0, 1, -1).Day()
		if m == 0 {
			lastDay = now.Day()
		}

		inputs := []services.TransactionInput{{
			Type:        "income",
			Category:    s.faker.RandomString(seedIncomeCategories),
			Amount:      fmt.Sprintf("%.2f", s.faker.Price(1800, 4200)),
			Date:        first.Format(time.DateOnly),
			Description: "Monthly income",
		}}
		for i := 0; i < opts.TxPerMonth; i++ {
			day := s.faker.Number(1, lastDay)
			inputs = append(inputs, services.TransactionInput{
				Type:        "expense",
				Category:    s.faker.RandomString(seedExpenseCategories),
				Amount:      fmt.Sprintf("%.2f", s.faker.Price(4, 260)),
				Date:        first.AddDate(0, 0, day-1).Format(time.DateOnly),
				Description: s.faker.Sentence(3),
			})
		}

		for _, in := range inputs {
			if _, err := s.ledger.Create(ctx, userID, in); err != nil {
				return created, fmt.Errorf("seed transaction %s %s: %w", in.Date, in.Category, err)
			}
			created++
		}
	}
	return created, nil
}

func seedCmd(a *app) *cobra.Command {
	opts := seedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo users with budgets and transactions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Users < 1 || opts.Months < 1 || opts.TxPerMonth < 0 {
				return errors.New("--users and --months must be positive, --per-month must not be negative")
			}
			if opts.Password == "" {
				return errors.New("--password cannot be empty")
			}

			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			// No publisher and no cache: seeding happens offline.
			s := newSeeder(
				services.NewUserService(repo, nil, nil),
				services.NewLedgerService(repo, nil, nil),
				services.NewBudgetService(repo, nil, nil),
				opts.RandomSeed,
			)

			start := time.Now()
			res, err := s.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}

			a.logger.Info("Demo data seeded",
				applog.FieldOperation, "seed",
				"users", len(res.Users),
				"budgets", res.Budgets,
				"transactions", res.Transactions,
				applog.FieldDuration, time.Since(start).Milliseconds())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Seeded %d user(s), %d budget(s), %d transaction(s)\n", len(res.Users), res.Budgets, res.Transactions)
			for _, u := range res.Users {
				fmt.Fprintf(out, "  #%d  %s  password: %s\n", u.ID, u.Email, opts.Password)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.Users, "users", 3, "number of demo users")
	cmd.Flags().IntVar(&opts.Months, "months", 6, "months of history per user, ending with the current month")
	cmd.Flags().IntVar(&opts.TxPerMonth, "per-month", 12, "expense transactions per month")
	cmd.Flags().StringVar(&opts.Password, "password", "fintrack-demo", "password for every demo user")
	cmd.Flags().Int64Var(&opts.RandomSeed, "random-seed", 0, "faker seed; 0 picks a random one")
	cmd.Flags().StringVar(&opts.EmailDomain, "email-domain", "example.com", "domain of generated emails")
	return cmd
}
