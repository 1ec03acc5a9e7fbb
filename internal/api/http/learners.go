package http

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	authmw "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

var errAdminOnly = errors.New("only an admin may create or modify admin accounts")

type learnerRow struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`               // usually "learner"
	Password string `json:"password,omitempty"` // plaintext optional (LAN-only)
}

// POST /learners/bulk  JSON array, or multipart file= (CSV or JSON)
// Rows granting or touching the admin role need an admin caller.
func BulkUpsertLearnersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []learnerRow
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", 400)
				return
			}
			defer f.Close()
			body, err := io.ReadAll(f)
			if err != nil || len(strings.TrimSpace(string(body))) == 0 {
				http.Error(w, "empty file", 400)
				return
			}
			trimmed := strings.TrimSpace(string(body))
			if trimmed[0] == '[' {
				if err := json.Unmarshal(body, &rows); err != nil {
					http.Error(w, "bad json", 400)
					return
				}
			} else {
				rs, err := parseLearnersCSV(strings.NewReader(trimmed))
				if err != nil {
					http.Error(w, "bad csv: "+err.Error(), 400)
					return
				}
				rows = rs
			}
		} else {
			if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
				http.Error(w, "expected JSON array or multipart file", 400)
				return
			}
		}
		if len(rows) == 0 {
			respondJSON(w, http.StatusOK, map[string]any{"inserted": 0, "updated": 0})
			return
		}

		callerIsAdmin := rbac.RoleFromContext(r.Context()) == authmw.RoleAdmin
		ins, upd, err := upsertLearners(r.Context(), db, rows, callerIsAdmin)
		if errors.Is(err, errAdminOnly) {
			rbac.Forbidden(w)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"inserted": ins, "updated": upd})
	}
}

// GET /learners?role=...
func ListLearnersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := r.URL.Query().Get("role")
		var rows *sql.Rows
		var err error
		if role == "" {
			rows, err = db.QueryContext(r.Context(), `SELECT id,username,role FROM learners ORDER BY username`)
		} else {
			rows, err = db.QueryContext(r.Context(), `SELECT id,username,role FROM learners WHERE role=$1 ORDER BY username`, role)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		defer rows.Close()
		out := []learnerRow{}
		for rows.Next() {
			var lr learnerRow
			if err := rows.Scan(&lr.ID, &lr.Username, &lr.Role); err != nil {
				writeError(w, err)
				return
			}
			out = append(out, lr)
		}
		respondJSON(w, http.StatusOK, out)
	}
}

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// POST /learners/change-password
func ChangePasswordHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learnerID := authmw.SubjectFromContext(r.Context())
		if learnerID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req changePasswordReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.NewPassword == "" {
			http.Error(w, "new password required", http.StatusBadRequest)
			return
		}

		var storedHash string
		err := db.QueryRowContext(r.Context(), `SELECT password_hash FROM learners WHERE id=$1`, learnerID).Scan(&storedHash)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "learner not found", http.StatusNotFound)
			return
		}
		if err != nil {
			writeError(w, err)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(req.OldPassword)) != nil {
			http.Error(w, "incorrect old password", http.StatusForbidden)
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), 12)
		if err != nil {
			writeError(w, err)
			return
		}
		if _, err := db.ExecContext(r.Context(), `UPDATE learners SET password_hash=$1 WHERE id=$2`, string(hash), learnerID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseLearnersCSV(r io.Reader) ([]learnerRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"id", "username"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	var rows []learnerRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := learnerRow{ID: rec[idx["id"]], Username: rec[idx["username"]]}
		if i, ok := idx["role"]; ok {
			row.Role = strings.ToLower(rec[i])
		}
		if i, ok := idx["password"]; ok {
			row.Password = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func upsertLearners(ctx context.Context, db *sql.DB, rows []learnerRow, callerIsAdmin bool) (inserted, updated int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	for _, r := range rows {
		if r.ID == "" || r.Username == "" {
			return inserted, updated, errors.New("id and username required")
		}
		if r.Role == "" {
			r.Role = authmw.RoleLearner
		}
		switch r.Role {
		case authmw.RoleLearner, authmw.RoleInstructor, authmw.RoleAdmin:
		default:
			return inserted, updated, errors.New("invalid role: " + r.Role)
		}
		if r.Role == authmw.RoleAdmin && !callerIsAdmin {
			return inserted, updated, errAdminOnly
		}
		// Hash password if provided. New learners must have one.
		var phash string
		if r.Password != "" {
			b, e := bcrypt.GenerateFromPassword([]byte(r.Password), 12)
			if e != nil {
				return inserted, updated, e
			}
			phash = string(b)
		}

		var exists bool
		var currentRole string
		if err = tx.QueryRowContext(ctx, `SELECT role FROM learners WHERE id=$1`, r.ID).Scan(&currentRole); err == nil {
			exists = true
		} else if !errors.Is(err, sql.ErrNoRows) {
			return inserted, updated, err
		}
		if exists {
			if currentRole == authmw.RoleAdmin && !callerIsAdmin {
				return inserted, updated, errAdminOnly
			}
			if phash != "" {
				_, err = tx.ExecContext(ctx, `UPDATE learners SET username=$1, role=$2, password_hash=$3 WHERE id=$4`,
					r.Username, r.Role, phash, r.ID)
			} else {
				_, err = tx.ExecContext(ctx, `UPDATE learners SET username=$1, role=$2 WHERE id=$3`,
					r.Username, r.Role, r.ID)
			}
			if err != nil {
				return inserted, updated, err
			}
			updated++
			continue
		}
		if phash == "" {
			err = errors.New("password required for new learner: " + r.Username)
			return inserted, updated, err
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO learners (id, username, role, password_hash) VALUES ($1,$2,$3,$4)`,
			r.ID, r.Username, r.Role, phash); err != nil {
			return inserted, updated, err
		}
		inserted++
	}
	return
}
