package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

func newID() string { return uuid.New().String() }

func hashPassword(pw string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), 12)
	if err != nil {
		log.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}

func daysAgo(d int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -d)
}

func must(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		envOr("DB_HOST", "localhost"),
		envOr("DB_PORT", "5432"),
		envOr("DB_USER", "dmengine"),
		envOr("DB_PASSWORD", "dmengine"),
		envOr("DB_NAME", "dmengine"),
		envOr("DB_SSL_MODE", "disable"),
	)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}
	fmt.Println("connected to database")

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback(ctx)

	const seedEmail = "seed@dmengine.dev"
	_, _ = tx.Exec(ctx, `DELETE FROM users WHERE email = $1`, seedEmail)
	fmt.Println("cleaned previous seed data")

	// ── 1. user ──────────────────────────────────────────────────────────
	userID := newID()
	createdAt := daysAgo(60)

	_, err = tx.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, locale, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		userID, seedEmail, "Demo Prospector", hashPassword("password123"), "en", createdAt,
	)
	must(err, "create user")
	fmt.Printf("created user: %s / password123\n", seedEmail)

	// ── 2. subscription + credit account ────────────────────────────────
	_, err = tx.Exec(ctx,
		`INSERT INTO subscriptions (user_id, plan_key, status, current_period_end, provider, provider_customer_id, provider_subscription_id)
		 VALUES ($1, 'pro', 'active', $2, 'stripe', 'cus_seed', 'sub_seed')`,
		userID, time.Now().UTC().AddDate(0, 1, 0),
	)
	must(err, "create subscription")

	_, err = tx.Exec(ctx,
		`INSERT INTO credit_accounts (user_id, balance, updated_at) VALUES ($1, 0, NOW())`,
		userID,
	)
	must(err, "create credit account")

	grantID := uuid.New().String()
	_, err = tx.Exec(ctx,
		`INSERT INTO credit_ledger (user_id, lot_id, event_type, delta, source, expires_at)
		 VALUES ($1, $2, 'grant_monthly', 500, $3, $4)`,
		userID, grantID, "grant_monthly:"+userID+":"+time.Now().UTC().Format("2006-01"), time.Now().UTC().AddDate(0, 1, 0),
	)
	must(err, "create monthly grant")

	_, err = tx.Exec(ctx,
		`UPDATE credit_accounts SET balance = 500, updated_at = NOW() WHERE user_id = $1`,
		userID,
	)
	must(err, "update credit balance")
	fmt.Println("granted 500 monthly credits")

	// ── 3. a completed job with decision makers ─────────────────────────
	companies := []struct {
		name, city, country, website string
	}{
		{"TechNova", "San Francisco", "USA", "https://technova.io"},
		{"CloudScale Inc.", "Austin", "USA", "https://cloudscale.example"},
		{"DataPulse", "New York", "USA", "https://datapulse.example"},
	}

	companiesData := make([]map[string]string, len(companies))
	for i, c := range companies {
		companiesData[i] = map[string]string{
			"company_name": c.name,
			"city":         c.city,
			"country":      c.country,
			"website":      c.website,
		}
	}
	companiesJSON, _ := json.Marshal(companiesData)

	columnMappings := map[string]string{
		"company_name": "company_name",
		"city":         "city",
		"country":      "country",
		"website":      "website",
	}
	columnMappingsJSON, _ := json.Marshal(columnMappings)

	platformsJSON, _ := json.Marshal([]string{"linkedin"})
	optionsJSON, _ := json.Marshal(map[string]any{"deep_search": false, "job_titles": []string{}})

	jobID := newID()
	jobCreatedAt := daysAgo(3)

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (
			id, user_id, support_id, filename, status, total_companies, processed_companies,
			decision_makers_found, credits_spent, stop_reason, column_mappings, companies_data,
			selected_platforms, options, llm_calls_started, llm_calls_succeeded, serper_calls,
			llm_prompt_tokens, llm_completion_tokens, llm_total_tokens, llm_cost_usd,
			serper_cost_usd, total_cost_usd, cost_per_contact_usd, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, 'completed', $5, $5, $6, $6, '', $7, $8,
			$9, $10, $11, $11, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $19
		)`,
		jobID, userID, "SEED0001", "sample_companies.csv", len(companies), len(companies),
		columnMappingsJSON, companiesJSON,
		platformsJSON, optionsJSON, len(companies),
		1200, 800, 2000, 0.04,
		0.01, 0.05, 0.05/float64(len(companies)), jobCreatedAt,
	)
	must(err, "create job")
	fmt.Println("created sample completed job")

	decisionMakers := []struct {
		companyIdx          int
		name, title, email  string
	}{
		{0, "Jordan Reyes", "VP of Engineering", "jordan.reyes@technova.io"},
		{1, "Priya Nair", "Head of Talent Acquisition", "priya.nair@cloudscale.example"},
		{2, "Marcus Webb", "Director of Product", "marcus.webb@datapulse.example"},
	}

	for _, dm := range decisionMakers {
		c := companies[dm.companyIdx]
		_, err = tx.Exec(ctx,
			`INSERT INTO decision_makers (
				job_id, user_id, company_name, company_type, company_city, company_country,
				company_website, name, title, platform, profile_url, emails_found,
				confidence_score, llm_call_timestamp, serper_call_timestamp
			) VALUES ($1, $2, $3, '', $4, $5, $6, $7, $8, 'linkedin', $9, $10, 'HIGH', $11, $11)`,
			jobID, userID, c.name, c.city, c.country, c.website,
			dm.name, dm.title, "https://linkedin.com/in/"+dm.name, dm.email, jobCreatedAt,
		)
		must(err, "create decision maker "+dm.name)
	}
	fmt.Printf("created %d decision makers\n", len(decisionMakers))

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("commit: %v", err)
	}

	fmt.Println("\nseed completed successfully")
	fmt.Printf("  login: %s / password123\n", seedEmail)
}
