package database_test

import (
	// Register embedded migrations for the test binary without creating an
	// import cycle in the internal test package.
	_ "github.com/calden87/tuyatrace/migrations"
)
