package palloc_test

import (
	"fmt"

	"github.com/pavanmanishd/palloc"
)

// Example demonstrates basic arena usage
func Example() {
	a, err := palloc.NewArena(0)
	if err != nil {
		panic(err)
	}
	defer a.Destroy()

	// Small requests are carved out of the current region
	buf, _ := a.Alloc(1024)
	fmt.Printf("Allocated buffer of size: %d\n", len(buf))

	// Typed values are zeroed
	n, _ := palloc.New[int](a)
	*n = 42
	fmt.Printf("Allocated int with value: %d\n", *n)

	s, _ := palloc.MakeSlice[int](a, 5)
	for i := range s {
		s[i] = i * 2
	}
	fmt.Printf("Allocated slice: %v\n", s)

	name, _ := palloc.Strdup(a, "request-17")
	fmt.Printf("Copied string: %s\n", name)

	// Requests above the small ceiling go to the raw allocator
	_, _ = a.Alloc(a.MaxSmall() + 1)
	fmt.Printf("Large allocations: %d\n", a.Metrics().LargeAllocs)

	a.Reset()
	fmt.Printf("Large allocations after reset: %d\n", a.Metrics().LargeAllocs)

	// Output:
	// Allocated buffer of size: 1024
	// Allocated int with value: 42
	// Allocated slice: [0 2 4 6 8]
	// Copied string: request-17
	// Large allocations: 1
	// Large allocations after reset: 0
}

// ExampleArena_AddCleanup shows that cleanups run in reverse order of
// registration when the arena is destroyed.
func ExampleArena_AddCleanup() {
	a, err := palloc.NewArena(0)
	if err != nil {
		panic(err)
	}

	for _, name := range []string{"socket", "buffer", "cache"} {
		c, _ := a.AddCleanup(len(name))
		copy(c.Data, name)
		c.Handler = func(data []byte) {
			fmt.Printf("released %s\n", data)
		}
	}

	a.Destroy()

	// Output:
	// released cache
	// released buffer
	// released socket
}

// ExampleArray builds a list that grows past its initial capacity.
func ExampleArray() {
	a, err := palloc.NewArena(0)
	if err != nil {
		panic(err)
	}
	defer a.Destroy()

	squares, _ := palloc.NewArray[int](a, 2)
	for i := 1; i <= 4; i++ {
		e, err := squares.Push()
		if err != nil {
			panic(err)
		}
		*e = i * i
	}
	tail, _ := squares.PushN(2)
	tail[0], tail[1] = 25, 36

	fmt.Println(squares.Len(), squares.Cap() >= squares.Len())
	fmt.Println(squares.Elems())

	// Output:
	// 6 true
	// [1 4 9 16 25 36]
}

// ExamplePool demonstrates per-request arenas in a server.
func ExamplePool() {
	pool := palloc.NewPool(16*1024, 4)
	defer pool.Close()

	handle := func(id int) string {
		a, err := pool.Get()
		if err != nil {
			return err.Error()
		}
		defer pool.Put(a)

		lengths, _ := palloc.NewArray[int](a, 4)
		for _, h := range []string{"Host", "Accept", "User-Agent"} {
			name, _ := palloc.Strdup(a, h)
			e, _ := lengths.Push()
			*e = len(name)
		}
		return fmt.Sprintf("request %d: %d headers %v", id, lengths.Len(), lengths.Elems())
	}

	for i := 1; i <= 3; i++ {
		fmt.Println(handle(i))
	}
	fmt.Println("idle arenas:", pool.Idle())

	// Output:
	// request 1: 3 headers [4 6 10]
	// request 2: 3 headers [4 6 10]
	// request 3: 3 headers [4 6 10]
	// idle arenas: 1
}
