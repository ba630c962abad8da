package sqlagent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"gorm.io/gorm"
)

// runCapture 单次 agent 运行的执行轨迹，经 context 传入工具。
// execute_sql 每次执行都会覆盖，最终保留最后一条语句的结果。
type runCapture struct {
	mu       sync.Mutex
	SQLText  string
	RowCount int64
	Executed bool
	ExecErr  string
}

type captureKey struct{}

func withCapture(ctx context.Context, c *runCapture) context.Context {
	return context.WithValue(ctx, captureKey{}, c)
}

func captureFrom(ctx context.Context) *runCapture {
	c, _ := ctx.Value(captureKey{}).(*runCapture)
	return c
}

type describeTableParams struct {
	Table string `json:"table" jsonschema:"description=table name to describe"`
}

type executeSQLParams struct {
	SQL string `json:"sql" jsonschema:"description=a single read-only SQL statement (SELECT/SHOW/DESCRIBE/EXPLAIN)"`
}

type listTablesParams struct{}

// buildDBTools 构造 agent 的三个本地数据库工具。
// maxResultRows 限制返回给模型的行数，防止撑爆上下文。
func buildDBTools(db *gorm.DB, maxResultRows int) ([]tool.BaseTool, error) {
	if maxResultRows <= 0 {
		maxResultRows = 20
	}

	listTables, err := utils.InferTool(
		"list_tables",
		"List all tables available in the database. Always call this first.",
		func(ctx context.Context, _ *listTablesParams) (string, error) {
			var tables []string
			if err := db.WithContext(ctx).Raw("SHOW TABLES").Scan(&tables).Error; err != nil {
				return "", err
			}
			if len(tables) == 0 {
				return "no tables found", nil
			}
			return strings.Join(tables, ", "), nil
		})
	if err != nil {
		return nil, err
	}

	describeTable, err := utils.InferTool(
		"describe_table",
		"Show the CREATE TABLE statement and up to 3 sample rows for one table.",
		func(ctx context.Context, p *describeTableParams) (string, error) {
			name := strings.TrimSpace(p.Table)
			if name == "" {
				return "", fmt.Errorf("table name is empty")
			}
			if !isSafeIdentifier(name) {
				return "", fmt.Errorf("invalid table name: %s", name)
			}

			var tbl, ddl string
			row := db.WithContext(ctx).Raw("SHOW CREATE TABLE `" + name + "`").Row()
			if err := row.Scan(&tbl, &ddl); err != nil {
				return "", err
			}

			sample, _, err := queryAndRender(ctx, db, "SELECT * FROM `"+name+"` LIMIT 3", 3)
			if err != nil {
				// 表可能为空或不可读，DDL 仍然有用
				return ddl, nil
			}
			return ddl + "\n\nSample rows:\n" + sample, nil
		})
	if err != nil {
		return nil, err
	}

	executeSQL, err := utils.InferTool(
		"execute_sql",
		"Execute a single read-only SQL statement and return the result rows. DML/DDL is rejected.",
		func(ctx context.Context, p *executeSQLParams) (string, error) {
			stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(p.SQL), ";"))
			cap := captureFrom(ctx)
			if !IsReadOnlySQL(stmt) {
				if cap != nil {
					cap.mu.Lock()
					cap.ExecErr = "rejected non read-only statement"
					cap.mu.Unlock()
				}
				return "", fmt.Errorf("only read-only statements are allowed (SELECT/SHOW/DESCRIBE/EXPLAIN)")
			}

			rendered, count, err := queryAndRender(ctx, db, stmt, maxResultRows)
			if cap != nil {
				cap.mu.Lock()
				cap.SQLText = stmt
				if err != nil {
					cap.ExecErr = err.Error()
				} else {
					cap.Executed = true
					cap.RowCount = count
					cap.ExecErr = ""
				}
				cap.mu.Unlock()
			}
			if err != nil {
				return "", err
			}
			if count == 0 {
				return "query returned no rows", nil
			}
			return rendered, nil
		})
	if err != nil {
		return nil, err
	}

	return []tool.BaseTool{listTables, describeTable, executeSQL}, nil
}

// IsReadOnlySQL 只读语句守卫：单条语句，且以只读关键字开头
func IsReadOnlySQL(stmt string) bool {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	if s == "" {
		return false
	}
	// 拒绝多语句
	if strings.Contains(s, ";") {
		return false
	}
	first := strings.ToUpper(firstWord(s))
	switch first {
	case "SELECT", "SHOW", "DESCRIBE", "DESC", "EXPLAIN", "WITH":
	default:
		return false
	}
	// WITH ... 的 CTE 最终也必须是 SELECT
	if first == "WITH" {
		upper := strings.ToUpper(s)
		for _, kw := range []string{"INSERT", "UPDATE", "DELETE", "REPLACE", "MERGE"} {
			if strings.Contains(upper, kw) {
				return false
			}
		}
	}
	return true
}

func firstWord(s string) string {
	for i, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			return s[:i]
		}
	}
	return s
}

func isSafeIdentifier(s string) bool {
	for _, r := range s {
		ok := r == '_' ||
			(r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return s != ""
}

// queryAndRender 执行查询并渲染为文本表格，返回总行数（可能大于渲染行数）
func queryAndRender(ctx context.Context, db *gorm.DB, stmt string, maxRows int) (string, int64, error) {
	rows, err := db.WithContext(ctx).Raw(stmt).Rows()
	if err != nil {
		return "", 0, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", 0, err
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(cols, " | "))
	sb.WriteString("\n")

	var count int64
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		count++
		if count > int64(maxRows) {
			continue // 只计数，不再渲染
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", count, err
		}
		cells := make([]string, len(cols))
		for i, v := range vals {
			cells[i] = renderCell(v)
		}
		sb.WriteString(strings.Join(cells, " | "))
		sb.WriteString("\n")
	}
	if err := rows.Err(); err != nil {
		return "", count, err
	}
	if count > int64(maxRows) {
		sb.WriteString(fmt.Sprintf("... (%d rows total, showing first %d)\n", count, maxRows))
	}
	return sb.String(), count, nil
}

func renderCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
