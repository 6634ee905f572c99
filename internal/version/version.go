// Package version хранит сведения о сборке, которые задаются через -ldflags:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/wholesale/internal/version.version=v1.2.0"
package version

import "fmt"

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает хэш коммита.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

// Fields возвращает сведения о сборке в виде полей для структурного лога.
func Fields() map[string]interface{} {
	return map[string]interface{}{
		"version": version,
		"commit":  commit,
		"date":    date,
	}
}

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
