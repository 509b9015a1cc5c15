package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerPool(t *testing.T) {
	assert := assert.New(t)

	t.Run("Get and Put", func(t *testing.T) {
		timer1 := GetTimer(10 * time.Millisecond)
		assert.NotNil(timer1)

		PutTimer(timer1)

		timer2 := GetTimer(20 * time.Millisecond)
		assert.NotNil(timer2)

		<-timer2.C // a reused timer must still fire
	})

	t.Run("Put Active Timer", func(t *testing.T) {
		timer1 := GetTimer(100 * time.Millisecond)
		time.Sleep(50 * time.Millisecond)

		PutTimer(timer1) // still armed when pooled

		begin := time.Now()
		timer2 := GetTimer(300 * time.Millisecond)

		select {
		case fired := <-timer2.C:
			if fired.Sub(begin) < 270*time.Millisecond {
				t.Error("reused timer fired with the old deadline")
			}
		case <-time.After(500 * time.Millisecond):
			t.Error("reused timer never fired")
		}
	})

	t.Run("Concurrency", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				timer := GetTimer(10 * time.Millisecond)
				defer PutTimer(timer)
				<-timer.C
			}()
		}
		wg.Wait()
	})
}
