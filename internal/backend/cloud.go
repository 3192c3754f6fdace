package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/autoscaling"

	"github.com/tradefleet/fleet-autoscaler/internal/logger"
	"github.com/tradefleet/fleet-autoscaler/pkg/config"
)

// CloudDriver scales services mapped to cloud auto scaling groups. A service
// id maps to the group named "<group_prefix><service_id>"; scaling sets the
// desired capacity and waits for InService instances to converge.
type CloudDriver struct {
	asg          *autoscaling.AutoScaling
	groupPrefix  string
	pollInterval time.Duration
}

func NewCloudDriver(cfg config.CloudBackendConfig) (*CloudDriver, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(cfg.Region)})
	if err != nil {
		return nil, fmt.Errorf("%w: create cloud session: %v", ErrBackendUnreachable, err)
	}

	poll := cfg.PollInterval
	if poll == 0 {
		poll = 5 * time.Second
	}

	return &CloudDriver{
		asg:          autoscaling.New(sess),
		groupPrefix:  cfg.GroupPrefix,
		pollInterval: poll,
	}, nil
}

func (d *CloudDriver) CurrentInstances(ctx context.Context, serviceID string) (int, error) {
	group, err := d.fetchGroup(ctx, serviceID)
	if err != nil {
		return 0, err
	}
	return inServiceCount(group), nil
}

func (d *CloudDriver) Scale(ctx context.Context, serviceID string, target int) (*ScalingResult, error) {
	started := time.Now()

	group, err := d.fetchGroup(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	previous := inServiceCount(group)

	_, err = d.asg.SetDesiredCapacityWithContext(ctx, &autoscaling.SetDesiredCapacityInput{
		AutoScalingGroupName: group.AutoScalingGroupName,
		DesiredCapacity:      aws.Int64(int64(target)),
		HonorCooldown:        aws.Bool(false),
	})
	if err != nil {
		return nil, classifyCloudError(err)
	}

	logger.WithService(serviceID).Infof("Cloud group %s set to desired capacity %d, waiting for in-service",
		aws.StringValue(group.AutoScalingGroupName), target)

	last, err := waitUntil(ctx, d.pollInterval, func(ctx context.Context) (int, bool, error) {
		group, err := d.fetchGroup(ctx, serviceID)
		if err != nil {
			return 0, false, err
		}
		n := inServiceCount(group)
		return n, n == target, nil
	})

	result := &ScalingResult{
		ServiceID:         serviceID,
		PreviousInstances: previous,
		NewInstances:      last,
		DurationMs:        time.Since(started).Milliseconds(),
	}
	if errors.Is(err, ErrBackendTimeout) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("timed out waiting for %d in-service instances, observed %d", target, last))
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *CloudDriver) Describe(ctx context.Context, serviceID string) (*ServiceInfo, error) {
	group, err := d.fetchGroup(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return &ServiceInfo{
		ServiceID:    serviceID,
		Provider:     "cloud",
		Instances:    int(aws.Int64Value(group.DesiredCapacity)),
		Healthy:      inServiceCount(group),
		MinSupported: int(aws.Int64Value(group.MinSize)),
		MaxSupported: int(aws.Int64Value(group.MaxSize)),
	}, nil
}

func (d *CloudDriver) Close() error {
	return nil
}

func (d *CloudDriver) groupName(serviceID string) string {
	return d.groupPrefix + serviceID
}

func (d *CloudDriver) fetchGroup(ctx context.Context, serviceID string) (*autoscaling.Group, error) {
	name := d.groupName(serviceID)
	out, err := d.asg.DescribeAutoScalingGroupsWithContext(ctx, &autoscaling.DescribeAutoScalingGroupsInput{
		AutoScalingGroupNames: []*string{aws.String(name)},
	})
	if err != nil {
		return nil, classifyCloudError(err)
	}
	if len(out.AutoScalingGroups) == 0 {
		return nil, fmt.Errorf("%w: auto scaling group %s", ErrServiceNotFound, name)
	}
	return out.AutoScalingGroups[0], nil
}

func inServiceCount(group *autoscaling.Group) int {
	n := 0
	for _, inst := range group.Instances {
		if aws.StringValue(inst.LifecycleState) == autoscaling.LifecycleStateInService {
			n++
		}
	}
	return n
}

func classifyCloudError(err error) error {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case autoscaling.ErrCodeScalingActivityInProgressFault, autoscaling.ErrCodeLimitExceededFault:
			return fmt.Errorf("%w: %s", ErrBackendRejected, aerr.Message())
		case "RequestCanceled":
			return fmt.Errorf("%w: %v", ErrBackendTimeout, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrBackendUnreachable, err)
}
