package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/ujicara/cbt-backend/internal/config"
	"github.com/ujicara/cbt-backend/internal/database"
	"github.com/ujicara/cbt-backend/internal/logger"
	"github.com/ujicara/cbt-backend/internal/model"
	"github.com/ujicara/cbt-backend/internal/repository"
	"github.com/ujicara/cbt-backend/internal/service"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// fixture is the JSON file format consumed by the seeder: exam settings,
// the question bank and the participant roster in one document.
type fixture struct {
	Settings  map[string]string `json:"settings"`
	Questions []fixtureQuestion `json:"questions"`
	Roster    []fixtureEntry    `json:"participants"`
}

type fixtureQuestion struct {
	Prompt        string    `json:"prompt"`
	Options       [4]string `json:"options"`
	CorrectOption int       `json:"correct_option"`
}

type fixtureEntry struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Password   string `json:"password,omitempty"`
}

func main() {
	var fixturePath string
	flag.StringVar(&fixturePath, "file", "seed.json", "Path to the seed fixture")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	raw, err := os.ReadFile(fixturePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", fixturePath).Msg("Failed to read fixture")
	}

	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		log.Fatal().Err(err).Msg("Failed to parse fixture")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	participantRepo := repository.NewParticipantRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	settingService := service.NewSettingService(repository.NewSettingRepository(pool), log)

	fmt.Println("=== Seeding Exam Content ===")

	// ─── Settings ──────────────────────────────────────────────────────
	if err := settingService.UpdateSettings(ctx, fx.Settings); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply settings")
	}
	fmt.Printf("Applied %d settings\n", len(fx.Settings))

	// ─── Questions ─────────────────────────────────────────────────────
	questions := make([]model.Question, 0, len(fx.Questions))
	for i, q := range fx.Questions {
		if q.CorrectOption < 0 || q.CorrectOption >= model.OptionCount {
			log.Fatal().Int("index", i).Int("correct_option", q.CorrectOption).Msg("Correct option out of range")
		}
		questions = append(questions, model.Question{
			ID:            uuid.New(),
			Prompt:        q.Prompt,
			Options:       q.Options,
			CorrectOption: q.CorrectOption,
			Position:      i + 1,
		})
	}
	if err := questionRepo.Replace(ctx, questions); err != nil {
		log.Fatal().Err(err).Msg("Failed to replace questions")
	}
	fmt.Printf("Loaded %d questions\n", len(questions))

	// ─── Participants ──────────────────────────────────────────────────
	// Entries without an explicit password share one, prompted once.
	sharedHash := ""
	needsShared := false
	for _, entry := range fx.Roster {
		if entry.Password == "" {
			needsShared = true
			break
		}
	}
	if needsShared {
		fmt.Print("Enter shared participant password: ")
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read password")
		}
		if len(bytePassword) == 0 {
			fmt.Println("Error: Password is required")
			return
		}
		hash, err := bcrypt.GenerateFromPassword(bytePassword, cfg.BcryptCost)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to hash password")
		}
		sharedHash = string(hash)
	}

	successCount := 0
	for i, entry := range fx.Roster {
		passwordHash := sharedHash
		if entry.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(entry.Password), cfg.BcryptCost)
			if err != nil {
				log.Fatal().Err(err).Str("identifier", entry.Identifier).Msg("Failed to hash password")
			}
			passwordHash = string(hash)
		}

		identifier := entry.Identifier
		if identifier == "" {
			identifier = "peserta" + strconv.Itoa(i+1)
		}

		participant := &model.Participant{
			Identifier:   identifier,
			Name:         entry.Name,
			PasswordHash: passwordHash,
		}

		if err := participantRepo.Create(ctx, participant); err != nil {
			fmt.Printf("Error creating participant %s: %v\n", identifier, err)
		} else {
			successCount++
			if successCount%10 == 0 {
				fmt.Printf("Created %d participants...\n", successCount)
			}
		}
	}

	fmt.Printf("\nSeed completed! Successfully added %d/%d participants.\n", successCount, len(fx.Roster))
}
