package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumacare/visit-scheduling/internal/db"
)

var serviceTypes = []string{
	"Personal Care",
	"Companionship",
	"Medication Reminder",
	"Meal Preparation",
	"Respite Care",
	"Light Housekeeping",
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), dsn); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	gofakeit.Seed(time.Now().UnixNano())

	caregivers, err := seedCaregivers(context.Background(), pool, 12)
	if err != nil {
		log.Fatalf("seed caregivers: %v", err)
	}
	clients, err := seedClients(context.Background(), pool, 40)
	if err != nil {
		log.Fatalf("seed clients: %v", err)
	}
	if err := seedVisits(context.Background(), pool, caregivers, clients); err != nil {
		log.Fatalf("seed visits: %v", err)
	}

	log.Println("seed complete")
}

func seedCaregivers(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d caregivers", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		phone := gofakeit.Phone()

		_, err := tx.Exec(ctx, `
			INSERT INTO caregivers (id, name, phone, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, phone)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("caregivers seeded")
	return ids, nil
}

func seedClients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clients", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		addr := gofakeit.Address()
		phone := gofakeit.Phone()

		_, err := tx.Exec(ctx, `
			INSERT INTO clients (id, name, address, phone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, addr.Address, phone)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("clients seeded")
	return ids, nil
}

// seedVisits fills the current week. Assigned visits are laid out back to
// back per caregiver so the seed data never violates the no-overlap
// invariant; roughly one visit in five is left unassigned to exercise the
// staffing queue.
func seedVisits(ctx context.Context, pool *pgxpool.Pool, caregivers, clients []uuid.UUID) error {
	log.Println("seeding visits for the current week")

	now := time.Now()
	weekStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.Local)
	weekStart = weekStart.AddDate(0, 0, -int(weekStart.Weekday()))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	total := 0
	for day := 0; day < 7; day++ {
		for _, caregiverID := range caregivers {
			// Two to four visits per caregiver per day, starting at 08:00.
			cursor := weekStart.AddDate(0, 0, day).Add(8 * time.Hour)
			visitsToday := gofakeit.Number(2, 4)

			for i := 0; i < visitsToday; i++ {
				duration := time.Duration(gofakeit.Number(1, 3)) * time.Hour
				start := cursor
				end := start.Add(duration)
				cursor = end.Add(time.Duration(gofakeit.Number(30, 90)) * time.Minute)

				clientID := clients[gofakeit.Number(0, len(clients)-1)]
				serviceType := serviceTypes[gofakeit.Number(0, len(serviceTypes)-1)]

				var assigned *uuid.UUID
				if gofakeit.Number(1, 5) > 1 {
					cg := caregiverID
					assigned = &cg
				}

				var clientName, clientAddress string
				err := tx.QueryRow(ctx, `SELECT name, address FROM clients WHERE id = $1`, clientID).
					Scan(&clientName, &clientAddress)
				if err != nil {
					return err
				}

				_, err = tx.Exec(ctx, `
					INSERT INTO visits (id, client_id, client_name, client_address, caregiver_id,
						scheduled_start, scheduled_end, service_type, status, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'SCHEDULED', now(), now())
				`, uuid.New(), clientID, clientName, clientAddress, assigned, start, end, serviceType)
				if err != nil {
					return err
				}

				total++
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("visits seeded: %d", total)
	return nil
}
