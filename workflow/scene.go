package workflow

import "fmt"

// sceneAssemblyScript builds the Python that runs inside Blender after the
// model import: center the object on the origin, light it with a sun plus a
// soft fill, and aim a camera at it.
func sceneAssemblyScript(objectName string) string {
	return fmt.Sprintf(`
import bpy
import math

obj = bpy.data.objects.get(%q)
if obj is None:
    raise ValueError("imported object not found: %s")

# Center the object on the world origin.
bpy.ops.object.select_all(action='DESELECT')
obj.select_set(True)
bpy.context.view_layer.objects.active = obj
bpy.ops.object.origin_set(type='ORIGIN_GEOMETRY', center='BOUNDS')
obj.location = (0.0, 0.0, 0.0)

# Key light.
sun_data = bpy.data.lights.new(name="WorkflowSun", type='SUN')
sun_data.energy = 3.0
sun = bpy.data.objects.new(name="WorkflowSun", object_data=sun_data)
sun.location = (4.0, -4.0, 6.0)
sun.rotation_euler = (math.radians(45), 0.0, math.radians(45))
bpy.context.collection.objects.link(sun)

# Fill light to soften the shadows.
fill_data = bpy.data.lights.new(name="WorkflowFill", type='AREA')
fill_data.energy = 100.0
fill_data.size = 5.0
fill = bpy.data.objects.new(name="WorkflowFill", object_data=fill_data)
fill.location = (-3.0, 2.0, 3.0)
bpy.context.collection.objects.link(fill)

# Camera looking at the object.
cam_data = bpy.data.cameras.new(name="WorkflowCamera")
cam = bpy.data.objects.new(name="WorkflowCamera", object_data=cam_data)
cam.location = (5.0, -5.0, 3.5)
bpy.context.collection.objects.link(cam)
bpy.context.scene.camera = cam

direction = obj.location - cam.location
cam.rotation_euler = direction.to_track_quat('-Z', 'Y').to_euler()

print("scene assembled around " + obj.name)
`, objectName, objectName)
}

// polishScript applies shade smooth to the object. Failures here are
// cosmetic and never fail the run.
func polishScript(objectName string) string {
	return fmt.Sprintf(`
import bpy

obj = bpy.data.objects.get(%q)
if obj is not None and obj.type == 'MESH':
    bpy.ops.object.select_all(action='DESELECT')
    obj.select_set(True)
    bpy.context.view_layer.objects.active = obj
    bpy.ops.object.shade_smooth()
    print("shade smooth applied to " + obj.name)
`, objectName)
}
