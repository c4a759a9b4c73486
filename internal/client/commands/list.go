package commands

import (
	"context"
	"fmt"
)

// ListRoomsCommand lists all open rooms
type ListRoomsCommand struct{}

func (cmd *ListRoomsCommand) Run(flags *GlobalFlags) error {
	ctx := context.Background()

	wsClient, _, err := SetupClient(ctx, flags)
	if err != nil {
		return err
	}
	defer func() { _ = wsClient.Disconnect() }()

	rooms, err := wsClient.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rooms: %w", err)
	}

	if len(rooms) == 0 {
		fmt.Println("No rooms open")
		return nil
	}

	fmt.Println("Open rooms:")
	for _, room := range rooms {
		fmt.Printf("  %s: %d/%d players, %s, round %d, host %s\n",
			room.ID, room.Players, room.MaxPlayers, room.Status, room.Round, room.HostID)
	}
	return nil
}
