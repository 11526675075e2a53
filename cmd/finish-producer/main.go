package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// FinishMessage mirrors the consumer's wire format.
type FinishMessage struct {
	Login      string        `json:"login"`
	PlayerName string        `json:"player_name,omitempty"`
	ReqTstp    int64         `json:"req_tstp,omitempty"`
	Body       FinishRequest `json:"body"`
}

// FinishRequest mirrors the finish submission body.
type FinishRequest struct {
	MapUID       string  `json:"map_uid"`
	Time         int64   `json:"time"`
	RespawnCount int32   `json:"respawn_count"`
	Flags        uint32  `json:"flags,omitempty"`
	Cps          []int64 `json:"cps"`
}

var loginPrefixes = []string{
	"phoenix", "shadow", "thunder", "storm", "blaze", "ninja", "dragon", "wolf", "hawk", "viper",
	"ghost", "titan", "frost", "cyber", "nova", "raven", "omega", "alpha", "delta", "sigma",
}

func getLogin(idx int) string {
	prefixIdx := idx % len(loginPrefixes)
	suffix := idx/len(loginPrefixes) + 1
	return fmt.Sprintf("%s%d", loginPrefixes[prefixIdx], suffix)
}

// randomFinish generates a structurally valid finish: strictly increasing
// checkpoint times capped by the final time.
func randomFinish(mapUID string, cpCount int) FinishRequest {
	total := int64(rand.Intn(180_000) + 20_000)
	cps := make([]int64, cpCount)
	for i := 0; i < cpCount-1; i++ {
		cps[i] = total * int64(i+1) / int64(cpCount)
	}
	cps[cpCount-1] = total
	return FinishRequest{
		MapUID:       mapUID,
		Time:         total,
		RespawnCount: int32(rand.Intn(10)),
		Cps:          cps,
	}
}

func main() {
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "obstacle-finishes", "Kafka topic")
	mapUID := flag.String("map", "obstacle_demo_map", "Map uid to submit finishes on")
	cpCount := flag.Int("cps", 5, "Checkpoint count of the map")
	totalPlayers := flag.Int("players", 500, "Number of distinct players")
	finishesPerSecond := flag.Int("rate", 50, "Finishes per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Obstacle Finish Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:        %s\n", *brokers)
	fmt.Printf("  Topic:          %s\n", *topic)
	fmt.Printf("  Map:            %s\n", *mapUID)
	fmt.Printf("  Players:        %d\n", *totalPlayers)
	fmt.Printf("  Finishes/sec:   %d\n", *finishesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	sendMessage := func(msg FinishMessage) {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		// keyed by map uid so one map's finishes stay ordered
		pm := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(msg.Body.MapUID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- pm:
		case <-done:
			return
		}
	}

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s\n", reason)
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*finishesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var finishCount int64

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached, shutting down...")
				return
			}

			idx := rand.Intn(*totalPlayers)
			login := getLogin(idx)
			msg := FinishMessage{
				Login:      login,
				PlayerName: strings.ToUpper(login[:1]) + login[1:],
				ReqTstp:    time.Now().Unix(),
				Body:       randomFinish(*mapUID, *cpCount),
			}
			sendMessage(msg)
			atomic.AddInt64(&finishCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Finishes: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&finishCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}
