package main

import (
	"context"
	"fmt"
	"time"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/database"
	"github.com/invigilo/invigilo-backend/internal/logger"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// Seeds a demo exam with fifty enrolled students and two proctors.
// Every seeded account logs in with the same password.
const demoPassword = "invigilo-demo"

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	enrollmentRepo := repository.NewEnrollmentRepository(pool)
	proctorRepo := repository.NewExamProctorRepository(pool)

	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), cfg.BcryptCost)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to hash demo password")
	}

	fmt.Println("=== Seeding Demo Data ===")

	// ─── Admin ─────────────────────────────────────────────────────────
	admin := &model.User{
		Email:        "admin@invigilo.test",
		Name:         "Demo Admin",
		PasswordHash: string(hash),
		Role:         model.RoleAdmin,
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		log.Fatal().Err(err).Msg("Failed to create demo admin")
	}

	// ─── Proctors ──────────────────────────────────────────────────────
	proctors := make([]*model.User, 0, 2)
	for i := 1; i <= 2; i++ {
		p := &model.User{
			Email:        fmt.Sprintf("proctor%d@invigilo.test", i),
			Name:         fmt.Sprintf("Demo Proctor %d", i),
			PasswordHash: string(hash),
			Role:         model.RoleProctor,
		}
		if err := userRepo.Create(ctx, p); err != nil {
			log.Fatal().Err(err).Int("n", i).Msg("Failed to create proctor")
		}
		proctors = append(proctors, p)
	}

	// ─── Students ──────────────────────────────────────────────────────
	students := make([]*model.User, 0, 50)
	for i := 1; i <= 50; i++ {
		s := &model.User{
			Email:        fmt.Sprintf("student%02d@invigilo.test", i),
			Name:         fmt.Sprintf("Demo Student %02d", i),
			PasswordHash: string(hash),
			Role:         model.RoleStudent,
		}
		if err := userRepo.Create(ctx, s); err != nil {
			fmt.Printf("Error creating student %s: %v\n", s.Email, err)
			continue
		}
		students = append(students, s)
		if i%10 == 0 {
			fmt.Printf("Created %d students...\n", i)
		}
	}

	// ─── Exam ──────────────────────────────────────────────────────────
	description := "Seeded demo exam covering basic algebra."
	exam := &model.Exam{
		Title:            "Demo Algebra Exam",
		Subject:          "Mathematics",
		Description:      &description,
		StartTime:        time.Now().Add(15 * time.Minute),
		EndTime:          time.Now().Add(2 * time.Hour),
		DurationMinutes:  60,
		TotalMarks:       20,
		PassingMarks:     10,
		ShuffleQuestions: true,
		ShuffleOptions:   true,
		AllowLateEntry:   true,
		CreatedBy:        admin.ID,
	}
	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create demo exam")
	}

	correct := func(k string) *string { return &k }
	questions := []*model.Question{
		{
			ExamID: exam.ID, Type: model.QuestionTypeMCQ,
			Text: "What is 7 × 8?",
			Options: []model.QuestionOption{
				{Key: "A", Text: "54"}, {Key: "B", Text: "56"},
				{Key: "C", Text: "58"}, {Key: "D", Text: "64"},
			},
			CorrectAnswer: correct("B"), Marks: 5, NegativeMarks: 1,
		},
		{
			ExamID: exam.ID, Type: model.QuestionTypeMCQ,
			Text: "Solve for x: 2x + 6 = 14",
			Options: []model.QuestionOption{
				{Key: "A", Text: "3"}, {Key: "B", Text: "4"},
				{Key: "C", Text: "5"}, {Key: "D", Text: "10"},
			},
			CorrectAnswer: correct("B"), Marks: 5, NegativeMarks: 1,
		},
		{
			ExamID: exam.ID, Type: model.QuestionTypeShortAnswer,
			Text:  "Explain why dividing by zero is undefined.",
			Marks: 10,
		},
	}
	for _, q := range questions {
		if err := questionRepo.Create(ctx, q, nil); err != nil {
			log.Fatal().Err(err).Msg("Failed to create demo question")
		}
	}

	if err := examRepo.UpdateStatus(ctx, exam.ID, model.ExamStatusPublished); err != nil {
		log.Fatal().Err(err).Msg("Failed to publish demo exam")
	}

	// ─── Roster ────────────────────────────────────────────────────────
	for _, p := range proctors {
		assignment := &model.ExamProctor{ExamID: exam.ID, ProctorID: p.ID}
		if err := proctorRepo.Assign(ctx, assignment); err != nil {
			log.Fatal().Err(err).Msg("Failed to assign proctor")
		}
	}

	enrolled := 0
	for _, s := range students {
		en := &model.ExamEnrollment{ExamID: exam.ID, UserID: s.ID, Status: model.EnrollmentStatusRegistered}
		if err := enrollmentRepo.Create(ctx, en); err != nil {
			fmt.Printf("Error enrolling %s: %v\n", s.Email, err)
			continue
		}
		enrolled++
	}

	fmt.Printf("\nSeed completed! Exam %s with %d students enrolled.\n", exam.ID, enrolled)
	fmt.Printf("All accounts use the password %q.\n", demoPassword)
}
