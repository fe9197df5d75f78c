package cortos

// noCopy marks kernel objects that must stay at one address: wait
// queues and owner chains hold pointers to them. `go vet -copylocks`
// reports copies of any struct embedding it.
type noCopy struct{}

func (*noCopy) Lock() {}

func (*noCopy) Unlock() {}
