package database

// database/sql 驱动注册：mysql、pgx、sqlite（纯 Go）
import (
	_ "github.com/glebarez/go-sqlite"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)
