package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildtrix/mvp-studio-backend/internal/auth"
	"github.com/buildtrix/mvp-studio-backend/internal/prompt"
)

// setupPromptPool creates a test PostgreSQL pool.
// Skips the test if TEST_DB_DSN is not set.
func setupPromptPool(t *testing.T) *pgxpool.Pool {
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set, skipping PostgreSQL integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))

	_, err = pool.Exec(ctx, `
create table if not exists generated_prompts (
    id uuid primary key,
    user_id uuid not null,
    project_public_id text not null,
    kind text not null,
    tool text not null,
    version int not null,
    is_current boolean not null default false,
    content text not null,
    snippet_ids text[],
    confidence double precision not null default 0,
    rating int,
    archived boolean not null default false,
    created_at timestamptz not null default now()
);`)
	require.NoError(t, err)

	return pool
}

func TestPromptRepo_ConcurrentVersioning(t *testing.T) {
	pool := setupPromptPool(t)
	defer pool.Close()

	ctx := context.Background()
	repo := prompt.NewRepo(pool)

	userID := uuid.New().String()
	projectID := "mvp-" + uuid.New().String()[:13]

	t.Run("concurrent inserts keep exactly one current version", func(t *testing.T) {
		const writers = 8

		var wg sync.WaitGroup
		errs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = repo.Insert(ctx, &prompt.GeneratedPrompt{
					UserID:          userID,
					ProjectPublicID: projectID,
					Kind:            "skeleton",
					Tool:            "cursor",
					Content:         fmt.Sprintf("## Overview\nversion candidate %d", i),
					Confidence:      0.9,
				})
			}(i)
		}
		wg.Wait()

		for i, err := range errs {
			require.NoError(t, err, "writer %d", i)
		}

		var current, distinct, max int
		err := pool.QueryRow(ctx, `
select count(*) filter (where is_current),
       count(distinct version),
       max(version)
from generated_prompts
where project_public_id = $1 and kind = $2 and tool = $3;`,
			projectID, "skeleton", "cursor").Scan(&current, &distinct, &max)
		require.NoError(t, err)

		assert.Equal(t, 1, current)
		assert.Equal(t, writers, distinct)
		assert.Equal(t, writers, max)
	})

	t.Run("current returns the latest version", func(t *testing.T) {
		p, err := repo.Current(ctx, userID, projectID, "skeleton", "cursor")
		require.NoError(t, err)

		assert.True(t, p.IsCurrent)
		assert.Equal(t, 8, p.Version)
	})

	t.Run("current endpoint serves the active version", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		r := gin.New()
		r.Use(func(c *gin.Context) { c.Set(auth.CtxUserDBID, userID) })
		prompt.RegisterRoutes(r.Group("/prompts"), repo)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet,
			"/prompts/current?project_id="+projectID+"&kind=skeleton&tool=cursor", nil)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Success bool                   `json:"success"`
			Prompt  prompt.GeneratedPrompt `json:"prompt"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Prompt.IsCurrent)
		assert.Equal(t, 8, resp.Prompt.Version)

		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet,
			"/prompts/current?project_id=mvp-00000-0000", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("versioning is scoped per tool", func(t *testing.T) {
		err := repo.Insert(ctx, &prompt.GeneratedPrompt{
			UserID:          userID,
			ProjectPublicID: projectID,
			Kind:            "skeleton",
			Tool:            "bolt",
			Content:         "## Overview\nbolt flavoured prompt",
		})
		require.NoError(t, err)

		p, err := repo.Current(ctx, userID, projectID, "skeleton", "bolt")
		require.NoError(t, err)
		assert.Equal(t, 1, p.Version)

		cursor, err := repo.Current(ctx, userID, projectID, "skeleton", "cursor")
		require.NoError(t, err)
		assert.True(t, cursor.IsCurrent)
	})
}
