package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/landvest/landvest_backend/models"
)

// ErrInvalidSponsor is returned when the requested sponsor does not exist.
var ErrInvalidSponsor = errors.New("invalid sponsor")

// ErrTreeFull is returned when the spillover scan hits its node ceiling
// without finding an open slot.
var ErrTreeFull = errors.New("no open slot found within placement scan limit")

// Directory is the slice of the member directory placement needs.
type Directory interface {
	ChildOf(ctx context.Context, sponsorID primitive.ObjectID, position string) (*models.User, error)
}

// PlacementService finds the slot a new member occupies: breadth-first
// below the requested sponsor, left before right at every level, so the
// tree fills top-down and spillover lands as close to the sponsor as
// possible.
type PlacementService struct {
	directory Directory
	maxNodes  int
}

func NewPlacementService(directory Directory) *PlacementService {
	maxNodes := 50000
	if v := os.Getenv("PLACEMENT_MAX_NODES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxNodes = parsed
		}
	}
	return &PlacementService{directory: directory, maxNodes: maxNodes}
}

// FindSlot returns the first open (sponsor, position) slot in BFS order
// starting at sponsorID. The scan visits at most maxNodes members; a full
// subtree beyond that returns ErrTreeFull rather than scanning unbounded.
func (s *PlacementService) FindSlot(ctx context.Context, sponsorID primitive.ObjectID) (*models.PlacementResult, error) {
	queue := []primitive.ObjectID{sponsorID}
	visited := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		current := queue[0]
		queue = queue[1:]
		visited++
		if visited > s.maxNodes {
			return nil, fmt.Errorf("%w (scanned %d nodes)", ErrTreeFull, s.maxNodes)
		}

		for _, position := range []string{models.PositionLeft, models.PositionRight} {
			child, err := s.directory.ChildOf(ctx, current, position)
			if err != nil {
				return nil, err
			}
			if child == nil {
				return &models.PlacementResult{SponsorID: current, Position: position}, nil
			}
			queue = append(queue, child.ID)
		}
	}

	return nil, ErrTreeFull
}
