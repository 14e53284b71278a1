package circuitbreak

import "github.com/rapport-app/rapport/internal/logging"

var CircuitBreakChan chan string

const (
	TranscriberService = "transcriber"
	DBService          = "database"
	ObjectStoreService = "objectstore"
	BeaconService      = "beacon"
)

func Init() {
	CircuitBreakChan = make(chan string)
}

func TriggerError(service string) {
	if CircuitBreakChan == nil {
		logging.Logger.Fatal("rapport app is not created")
	}

	CircuitBreakChan <- service
}
