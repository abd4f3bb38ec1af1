package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"gigboard/internal/auth"
	"gigboard/internal/config"
	"gigboard/internal/database"
	"gigboard/internal/domain"
	"gigboard/internal/store"
)

func main() {
	var (
		email    = flag.String("email", "", "账号邮箱（必填）")
		username = flag.String("username", "", "用户名（必填）")
		role     = flag.String("role", string(domain.RoleClient), "角色：client 或 freelancer")
		skills   = flag.String("skills", "", "逗号分隔的技能列表，同时用于职位提醒订阅")
	)
	flag.Parse()

	e := strings.ToLower(strings.TrimSpace(*email))
	u := strings.TrimSpace(*username)
	if e == "" || u == "" {
		log.Fatal("missing required flags: --email and --username")
	}
	r, ok := domain.ParseRole(*role)
	if !ok {
		log.Fatalf("unknown role %q", *role)
	}

	cfg := config.MustLoad()
	if cfg.Store.Driver != config.StorePostgres {
		log.Fatal("admin seeding requires STORE_DRIVER=postgres")
	}

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}
	users := database.NewStore(db).Users

	authService, err := auth.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL)
	if err != nil {
		log.Fatalf("init auth service: %v", err)
	}

	password, err := generateRandomPassword(24)
	if err != nil {
		log.Fatalf("generate password: %v", err)
	}
	hashed, err := authService.HashPassword(password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	skillList := splitSkills(*skills)
	user := domain.User{
		ID:               uuid.NewString(),
		Email:            e,
		Username:         u,
		PasswordHash:     hashed,
		Role:             r,
		Profile:          domain.Profile{Skills: skillList},
		AlertPreferences: domain.AlertPreferences{Enabled: len(skillList) > 0, Skills: skillList},
		CreatedAt:        time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			log.Fatalf("user %q or email %q already exists", u, e)
		}
		log.Fatalf("create user: %v", err)
	}

	fmt.Printf("已创建账号：\n")
	fmt.Printf("ID: %s\n", user.ID)
	fmt.Printf("邮箱: %s\n", e)
	fmt.Printf("角色: %s\n", r)
	fmt.Printf("初始密码: %s\n", password)
	fmt.Printf("提示：该密码仅显示一次。\n")
}

func splitSkills(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
