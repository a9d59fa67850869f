package telegram

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// dispatcher runs updates of one chat strictly in arrival order while
// different chats proceed in parallel. A chat's goroutine exits once its
// queue is drained.
type dispatcher struct {
	handle func(tgbotapi.Update)

	mu     sync.Mutex
	queues map[int64][]tgbotapi.Update
	wg     sync.WaitGroup
}

func newDispatcher(handle func(tgbotapi.Update)) *dispatcher {
	return &dispatcher{handle: handle, queues: make(map[int64][]tgbotapi.Update)}
}

func (d *dispatcher) dispatch(chatID int64, u tgbotapi.Update) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, running := d.queues[chatID]
	d.queues[chatID] = append(q, u)
	if !running {
		d.wg.Add(1)
		go d.drain(chatID)
	}
}

func (d *dispatcher) drain(chatID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[chatID]
		if len(q) == 0 {
			delete(d.queues, chatID)
			d.mu.Unlock()
			return
		}
		u := q[0]
		d.queues[chatID] = q[1:]
		d.mu.Unlock()

		d.handle(u)
	}
}

// wait blocks until every queued update has been handled.
func (d *dispatcher) wait() {
	d.wg.Wait()
}
