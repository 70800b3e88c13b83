package migrator

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strconv"
)

//go:embed sql
var sqlFiles embed.FS

// Files are named NNNN_name.up.sql and NNNN_name.down.sql.
var fileRe = regexp.MustCompile(`^(\d{4})_([a-z0-9_]+)\.(up|down)\.sql$`)

// load reads the migrations of one dialect directory. Versions must be
// contiguous from 1 and each needs both an up and a down file.
func load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	byVer := map[int]*Migration{}
	for _, e := range entries {
		parts := fileRe.FindStringSubmatch(e.Name())
		if parts == nil {
			continue
		}
		v, _ := strconv.Atoi(parts[1])
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		mig := byVer[v]
		if mig == nil {
			mig = &Migration{Version: v, Name: parts[2], SemVer: fmt.Sprintf("0.%d.0", v)}
			byVer[v] = mig
		}
		if parts[3] == "up" {
			mig.UpSQL = string(b)
		} else {
			mig.DownSQL = string(b)
		}
	}
	out := make([]Migration, 0, len(byVer))
	for v := 1; v <= len(byVer); v++ {
		mig, ok := byVer[v]
		if !ok {
			return nil, fmt.Errorf("%s: migration %04d is missing", dir, v)
		}
		if mig.UpSQL == "" || mig.DownSQL == "" {
			return nil, fmt.Errorf("%s: migration %04d needs up and down files", dir, v)
		}
		out = append(out, *mig)
	}
	return out, nil
}

func mustLoad(dir string) []Migration {
	migs, err := load(sqlFiles, dir)
	if err != nil {
		panic(err)
	}
	return migs
}

var (
	mysqlMigrations    = mustLoad("sql/mysql")
	postgresMigrations = mustLoad("sql/postgres")
)
