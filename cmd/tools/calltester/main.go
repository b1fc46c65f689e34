package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/relayvox/relayvox/internal/config"
)

// calltester drives a scripted caller against a running relay server so the
// websocket protocol can be exercised without placing a phone call.
func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	url := flag.String("url", "", "relay websocket address (default derives from PORT)")
	callSid := flag.String("call", "", "call sid for the session, generated when empty")
	from := flag.String("from", "+15105550100", "caller number")
	to := flag.String("to", "+15105550199", "called number")
	prompt := flag.String("prompt", "", "caller utterance to send after setup")
	digits := flag.String("digits", "", "dtmf digits to press one at a time")
	interrupt := flag.Bool("interrupt", false, "barge in after the first reply token")
	hangup := flag.Bool("hangup", false, "send an end event before disconnecting")
	wait := flag.Duration("wait", 10*time.Second, "how long to wait for each reply")

	flag.Parse()

	if *prompt == "" && *digits == "" && !*hangup {
		flag.Usage()
		log.Fatal("nothing to do: pass -prompt, -digits or -hangup")
	}

	target := *url
	if target == "" {
		target = defaultTarget(cfg.Server.Addr)
	}

	sid := *callSid
	if sid == "" {
		sid = fmt.Sprintf("manual-%d", time.Now().Unix())
	}

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		log.Fatalf("dial %s failed: %v", target, err)
	}
	defer conn.Close()
	log.Printf("connected to %s as call=%s", target, sid)

	t := &tester{conn: conn, wait: *wait}
	t.send(map[string]any{
		"type":       "setup",
		"callSid":    sid,
		"from":       *from,
		"to":         *to,
		"direction":  "inbound",
		"callStatus": "in-progress",
	})

	if *prompt != "" {
		t.send(map[string]any{"type": "prompt", "voicePrompt": *prompt, "last": true})
		if *interrupt {
			t.readFirstToken()
			t.send(map[string]any{"type": "interrupt", "utteranceUntilInterrupt": "", "durationUntilInterruptMs": 500})
			t.drain(time.Second)
		} else {
			t.readReply()
		}
	}

	for _, d := range *digits {
		t.send(map[string]any{"type": "dtmf", "digit": string(d)})
		t.readReply()
	}

	if *hangup {
		t.send(map[string]any{"type": "end", "reason": "hangup"})
	}

	log.Println("done")
}

func defaultTarget(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "ws://localhost" + addr + "/ws"
	}
	return "ws://" + addr + "/ws"
}

type tester struct {
	conn *websocket.Conn
	seq  int
	wait time.Duration
}

func (t *tester) send(event map[string]any) {
	t.seq++
	event["sequenceNumber"] = t.seq
	log.Printf("[send] %s", event["type"])
	if err := t.conn.WriteJSON(event); err != nil {
		log.Fatalf("write %s failed: %v", event["type"], err)
	}
}

// readReply prints inbound events until the reply closes.
func (t *tester) readReply() {
	for {
		t.conn.SetReadDeadline(time.Now().Add(t.wait))
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			log.Fatalf("no reply within %s: %v", t.wait, err)
		}
		log.Printf("[recv] %s", data)

		var ev struct {
			Type string `json:"type"`
			Last bool   `json:"last"`
		}
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		switch {
		case ev.Type == "text" && ev.Last:
			return
		case ev.Type == "end":
			log.Println("server ended the session")
			return
		case ev.Type == "sendDigits" || ev.Type == "play":
			return
		}
	}
}

func (t *tester) readFirstToken() {
	for {
		t.conn.SetReadDeadline(time.Now().Add(t.wait))
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			log.Fatalf("no reply within %s: %v", t.wait, err)
		}
		log.Printf("[recv] %s", data)

		var ev struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &ev); err == nil && ev.Type == "text" {
			return
		}
	}
}

// drain prints whatever else arrives until the window closes.
func (t *tester) drain(window time.Duration) {
	t.conn.SetReadDeadline(time.Now().Add(window))
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		log.Printf("[recv] %s", data)
	}
}
