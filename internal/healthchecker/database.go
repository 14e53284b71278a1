package healthchecker

import (
	"github.com/rapport-app/rapport/internal/database"
)

func CheckDB() bool {
	_, err := database.NewDatabase()
	return err == nil
}
