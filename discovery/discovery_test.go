package discovery

import (
	"fmt"
	"testing"
	"time"
)

func TestDiscover(t *testing.T) {
	n := 5
	fatal := make(chan error, n)
	for i := range n {
		go func() {
			discover, err := New([]byte(fmt.Sprint(i)), WithPortRange(9100, 9110), WithAttempts(3))
			if err != nil {
				fatal <- err
				return
			}
			set := make(map[string]struct{})
			for len(set) < n-1 {
				entry := <-discover.Entries
				t.Logf("from node %d: %s", i, entry.Info)
				set[string(entry.Info)] = struct{}{}
			}
			for j := range n {
				if j == i {
					continue
				}
				if _, ok := set[fmt.Sprint(j)]; !ok {
					fatal <- fmt.Errorf("node %d did not find entry %d", i, j)
					return
				}
			}
			time.Sleep(3 * time.Second)
			fatal <- discover.Close()
		}()
	}
	for range n {
		if err := <-fatal; err != nil {
			t.Fatal(err)
		}
	}
}

func TestFormGroup(t *testing.T) {
	n := 3
	type result struct {
		self      string
		addresses []string
		rank      int
		err       error
	}
	results := make(chan result, n+1)
	// a process of another group must be ignored
	stranger, err := Announcement{Group: "other", Address: "127.0.0.1:1"}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	d, err := New(stranger, WithPortRange(9120, 9130), WithAttempts(0), WithInterval(100*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	for i := range n {
		go func() {
			self := Announcement{Group: "g", Address: fmt.Sprintf("127.0.0.1:%d", 7000+i)}
			info, err := self.Encode()
			if err != nil {
				results <- result{err: err}
				return
			}
			d, err := New(info, WithPortRange(9120, 9130), WithAttempts(0), WithInterval(100*time.Millisecond))
			if err != nil {
				results <- result{err: err}
				return
			}
			addresses, rank, err := FormGroup(d, self, n, 10*time.Second)
			// keep serving until the slowest member found us
			time.Sleep(2 * time.Second)
			results <- result{self: self.Address, addresses: addresses, rank: rank, err: err}
			d.Close()
		}()
	}
	for range n {
		r := <-results
		if r.err != nil {
			t.Fatal(r.err)
		}
		if len(r.addresses) != n {
			t.Fatalf("expected %d addresses, got %v", n, r.addresses)
		}
		if r.addresses[r.rank] != r.self {
			t.Fatalf("rank %d of %v is not %s", r.rank, r.addresses, r.self)
		}
		for i := range n {
			if expected := fmt.Sprintf("127.0.0.1:%d", 7000+i); r.addresses[i] != expected {
				t.Fatalf("expected %s at position %d, got %s", expected, i, r.addresses[i])
			}
		}
	}
}

func TestFormGroupTimeout(t *testing.T) {
	info, err := Announcement{Group: "alone", Address: "127.0.0.1:7100"}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	d, err := New(info, WithPortRange(9140, 9141))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if _, _, err := FormGroup(d, Announcement{Group: "alone", Address: "127.0.0.1:7100"}, 2, 500*time.Millisecond); err == nil {
		t.Fatal("expected a timeout")
	}
}
