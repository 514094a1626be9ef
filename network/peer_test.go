package network

import (
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestAllToAll(t *testing.T) {
	n := 3
	listeners, addresses := CreateListeners(n)
	fatal := make(chan error, 3*n)
	for i := 0; i < n; i++ {
		go func() {
			peer := NewPeer(i, addresses, listeners[i], 30*time.Second)
			p := NewP2P(peer)
			defer func() {
				fatal <- p.Close()
			}()
			actual, err := p.AllToAll([]byte(strconv.Itoa(i)))
			if err != nil {
				fatal <- err
				return
			}
			if len(actual) != n {
				fatal <- fmt.Errorf("from peer %d: expected list of length %d, %v given", i, n, actual)
				return
			}
			for j := 0; j < n; j++ {
				if strconv.Itoa(j) != string(actual[j]) {
					fatal <- fmt.Errorf("from peer %d: expected %d, actual %v", i, j, actual[j])
					return
				}
			}
		}()
	}
	for i := 0; i < n; i++ {
		err := <-fatal
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestBroadcast(t *testing.T) {
	n := 10
	listeners, addresses := CreateListeners(n)
	root := 3
	fatal := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		go func(i int) {
			peer := NewPeer(i, addresses, listeners[i], 30*time.Second)
			p := NewP2P(peer)
			defer func() {
				fatal <- p.Close()
			}()
			time.Sleep(time.Millisecond * 20 * time.Duration(p.GetRank()))
			recv, err := p.Broadcast([]byte{0, byte(10 * i)}, root)
			if err != nil {
				fatal <- err
				return
			}
			if len(recv) != 2 {
				fatal <- fmt.Errorf("expected length 2, %v received", recv)
				return
			}
			if recv[1] != byte(root*10) {
				fatal <- fmt.Errorf("expected %d, actual %d", root*10, recv[1])
				return
			}
		}(i)
	}
	for i := 0; i < n; i++ {
		err := <-fatal
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestBroadcastTimeout(t *testing.T) {
	n := 5
	listeners, addresses := CreateListeners(n)
	root := 0
	fatal := make(chan error, n)
	for i := 0; i < n-1; i++ {
		go func() {
			peer := NewPeer(i, addresses, listeners[i], 2*time.Second)
			p := NewP2P(peer)
			_, err := p.Broadcast([]byte{0, byte(10 * i)}, root)
			if err != nil {
				fatal <- fmt.Errorf("from peer %d: %w", i, err)
				return
			}
			fatal <- p.Close()
		}()
	}
	for i := 0; i < n-1; i++ {
		err := <-fatal
		if err == nil {
			t.Fatal("expected a timeout error")
		}
		t.Log(err)
	}
}

func TestBroadcastTwoPeers(t *testing.T) {
	listeners, addresses := CreateListeners(2)
	fatal := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			peer := NewPeer(i, addresses, listeners[i], 30*time.Second)
			p := NewP2P(peer)
			defer func() {
				fatal <- p.Close()
			}()
			time.Sleep(100 * time.Millisecond * time.Duration(i+1))
			recv, err := p.Broadcast([]byte{'0'}, 0)
			if err != nil {
				fatal <- err
				return
			}
			if recv[0] != '0' {
				fatal <- fmt.Errorf("from peer %d: expected %s, actual %s", i, "0", recv)
				return
			}
			time.Sleep(100 * time.Millisecond * time.Duration(i+1))
			recv, err = p.Broadcast([]byte{'1'}, 1)
			if err != nil {
				fatal <- err
				return
			}
			if recv[0] != '1' {
				fatal <- fmt.Errorf("from peer %d: expected %s, actual %s", i, "1", recv)
				return
			}
		}()
	}
	for i := 0; i < 2; i++ {
		err := <-fatal
		if err != nil {
			t.Fatal(err)
		}
	}
}

func TestBroadcastBarrier(t *testing.T) {
	n := 6
	listeners, addresses := CreateListeners(n)
	fatal := make(chan error, 2*n)
	clocks := make(chan int, 2*n)
	for i := 0; i < n; i++ {
		go func(i int) {
			peer := NewPeer(i, addresses, listeners[i], 30*time.Second)
			p := NewP2P(peer)
			defer func() {
				fatal <- p.Close()
			}()
			time.Sleep(time.Millisecond * 50 * time.Duration(p.GetRank()))
			clocks <- 0
			_, err := p.Broadcast(nil, 0)
			time.Sleep(time.Millisecond * 50 * time.Duration(p.GetRank()))
			clocks <- 1
			if err != nil {
				fatal <- err
				return
			}
		}(i)
	}
	for i := 0; i < n; i++ {
		err := <-fatal
		if err != nil {
			t.Fatal(err)
		}
	}
	close(clocks)
	prev := 0
	for time := range clocks {
		if prev > time {
			t.Fatalf("clocks out of sync: prev %d, time %d", prev, time)
		} else {
			prev = time
		}
	}
}

func TestScatter(t *testing.T) {
	for _, root := range []int{0, 2} {
		t.Run(fmt.Sprintf("root %d", root), func(t *testing.T) {
			n := 4
			listeners, addresses := CreateListeners(n)
			fatal := make(chan error, 2*n)
			var wg sync.WaitGroup
			wg.Add(n)
			for i := 0; i < n; i++ {
				go func(i int) {
					defer wg.Done()
					peer := NewPeer(i, addresses, listeners[i], 30*time.Second)
					defer func() {
						fatal <- peer.Close()
					}()
					var chunks [][]byte
					if i == root {
						for j := 0; j < n; j++ {
							chunks = append(chunks, []byte("chunk"+strconv.Itoa(j)))
						}
					}
					recv, err := peer.Scatter(chunks, root)
					if err != nil {
						fatal <- err
						return
					}
					if string(recv) != "chunk"+strconv.Itoa(i) {
						fatal <- fmt.Errorf("from peer %d: expected chunk%d, actual %s", i, i, recv)
					}
				}(i)
			}
			wg.Wait()
			close(fatal)
			for err := range fatal {
				if err != nil {
					t.Error(err)
				}
			}
		})
	}
}

func TestScatterSinglePeer(t *testing.T) {
	listeners, addresses := CreateListeners(1)
	peer := NewPeer(0, addresses, listeners[0], 0)
	defer peer.Close()
	recv, err := peer.Scatter([][]byte{[]byte("only")}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if string(recv) != "only" {
		t.Fatalf("expected only, actual %s", recv)
	}
}

func TestScatterWrongChunkCount(t *testing.T) {
	listeners, addresses := CreateListeners(2)
	peer := NewPeer(0, addresses, listeners[0], time.Second)
	defer peer.Close()
	if _, err := peer.Scatter([][]byte{[]byte("a")}, 0); err == nil {
		t.Fatal("expected an error for a missing chunk")
	}
}

func TestGather(t *testing.T) {
	n := 5
	root := 1
	listeners, addresses := CreateListeners(n)
	fatal := make(chan error, 2*n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			peer := NewPeer(i, addresses, listeners[i], 30*time.Second)
			defer func() {
				fatal <- peer.Close()
			}()
			recv, err := peer.Gather([]byte(strconv.Itoa(10*i)), root)
			if err != nil {
				fatal <- err
				return
			}
			if i != root {
				if recv != nil {
					fatal <- fmt.Errorf("from peer %d: expected nil, actual %v", i, recv)
				}
				return
			}
			if len(recv) != n {
				fatal <- fmt.Errorf("expected length %d, %d received", n, len(recv))
				return
			}
			for j := 0; j < n; j++ {
				if string(recv[j]) != strconv.Itoa(10*j) {
					fatal <- fmt.Errorf("expected %d, actual %s", 10*j, recv[j])
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(fatal)
	for err := range fatal {
		if err != nil {
			t.Error(err)
		}
	}
}

func TestGroupMismatch(t *testing.T) {
	listeners, addresses := CreateListeners(2)
	fatal := make(chan error, 2)
	groups := []string{"blue", "red"}
	for i := 0; i < 2; i++ {
		go func() {
			peer := NewPeerWithOptions(i, addresses,
				WithTimeout(time.Second),
				WithGroup(groups[i]),
			)
			peer.Start(listeners[i])
			defer peer.Close()
			_, err := peer.Broadcast([]byte("hello"), 0)
			fatal <- err
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-fatal; err == nil {
			t.Fatal("expected peers of different groups not to communicate")
		}
	}
}

func TestAllToAllBarrier(t *testing.T) {
	n := 6
	listeners, addresses := CreateListeners(n)
	fatal := make(chan error, n)
	clocks := make(chan int, 2*n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			peer := NewPeer(i, addresses, listeners[i], 30*time.Second)
			p := NewP2P(peer)
			time.Sleep(time.Millisecond * 50 * time.Duration(p.GetRank()))
			clocks <- 0
			_, err := p.AllToAll([]byte{})
			time.Sleep(time.Millisecond * 50 * time.Duration(p.GetRank()))
			if err != nil {
				fatal <- err
				return
			}
			if err := p.Close(); err != nil {
				fatal <- err
				return
			}
			clocks <- 1
		}(i)
	}
	wg.Wait()
	close(fatal)
	for err := range fatal {
		t.Error(err)
	}
	close(clocks)
	prev := 0
	for time := range clocks {
		if prev > time {
			t.Fatalf("clocks out of sync: prev %d, time %d", prev, time)
		} else {
			prev = time
		}
	}
}
