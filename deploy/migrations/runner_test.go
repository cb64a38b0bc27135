package migrations

import (
	"strings"
	"testing"
)

func TestLoadMigrationFilesOrdered(t *testing.T) {
	files, err := loadMigrationFiles()
	if err != nil {
		t.Fatalf("loadMigrationFiles: %v", err)
	}
	if len(files) < 3 {
		t.Fatalf("期望至少 3 个迁移文件, 实际 %d", len(files))
	}

	for i := 1; i < len(files); i++ {
		if files[i-1].version > files[i].version {
			t.Fatalf("迁移文件未按版本排序: %s 在 %s 之前", files[i-1].name, files[i].name)
		}
	}

	first := files[0]
	if first.version != "0001" {
		t.Fatalf("首个迁移版本 = %s, 期望 0001", first.version)
	}
	if len(first.statements) == 0 || !strings.Contains(first.statements[0], "route_tasks") {
		t.Fatalf("0001 迁移应创建 route_tasks 表: %v", first.statements)
	}
}

func TestSplitStatements(t *testing.T) {
	statements := splitStatements("CREATE TABLE a (id INT);\n\nCREATE TABLE b (id INT);\n")
	if len(statements) != 2 {
		t.Fatalf("len(statements) = %d, 期望 2", len(statements))
	}
	for _, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			t.Fatal("不应返回空语句")
		}
		if strings.Contains(stmt, ";") {
			t.Fatalf("语句不应包含分号: %q", stmt)
		}
	}
}

func TestParseVersion(t *testing.T) {
	version, err := parseVersion("0042_add_index.sql")
	if err != nil {
		t.Fatalf("parseVersion: %v", err)
	}
	if version != "0042" {
		t.Fatalf("version = %s, 期望 0042", version)
	}

	if _, err := parseVersion("noversion.sql"); err == nil {
		t.Fatal("缺少版本前缀时应返回错误")
	}
}
